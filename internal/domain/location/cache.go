package location

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

// Cache interns locations by their string. Only rows read back from the
// repository are cached. A read can still observe a row created earlier in
// the same transaction, so callers must Purge after a rollback.
type Cache struct {
	repo    Repository
	entries *lru.Cache[string, *Location]
}

func NewCache(repo Repository, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *Location](size)
	if err != nil {
		return nil, fmt.Errorf("create location cache: %w", err)
	}
	return &Cache{repo: repo, entries: entries}, nil
}

// Find returns the location for s, or nil if it has never been seen.
func (c *Cache) Find(ctx context.Context, s string) (*Location, error) {
	if l, ok := c.entries.Get(s); ok {
		return l, nil
	}
	l, err := c.repo.FindLocation(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("find location %q: %w", s, err)
	}
	if l != nil {
		c.entries.Add(s, l)
	}
	return l, nil
}

// GetOrCreate returns the location for s, creating it when unknown.
func (c *Cache) GetOrCreate(ctx context.Context, s string) (*Location, error) {
	l, err := c.Find(ctx, s)
	if err != nil || l != nil {
		return l, err
	}
	l = &Location{ID: uuid.New(), LocationString: s}
	if err := c.repo.CreateLocation(ctx, l); err != nil {
		return nil, fmt.Errorf("create location %q: %w", s, err)
	}
	c.entries.Remove(s)
	return l, nil
}

// Purge empties the cache. Callers use it after a rolled back transaction.
func (c *Cache) Purge() { c.entries.Purge() }

func (c *Cache) Len() int { return c.entries.Len() }
