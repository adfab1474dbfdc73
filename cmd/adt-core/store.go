package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/adtcore/internal/config"
	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/platform/db"
	"github.com/ehr/adtcore/internal/platform/store/memory"
	"github.com/ehr/adtcore/internal/platform/store/sqlite"
	"github.com/ehr/adtcore/internal/processor"
)

// backend is one configured storage: its repositories, the transaction
// runner over them and a liveness probe.
type backend struct {
	name  string
	tx    processor.Transactor
	repos processor.Repositories
	ping  db.Pinger
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &backend{
			name: cfg.Store,
			tx:   db.NewTransactor(pool),
			repos: processor.Repositories{
				Patients:  patient.NewRepo(pool),
				Visits:    visit.NewRepo(pool),
				Locations: location.NewRepo(pool),
				Clinical:  clinical.NewRepo(pool),
			},
			ping:  pool,
			close: pool.Close,
		}, nil
	case config.StoreMemory:
		store := memory.NewStore()
		return memoryBackend(cfg.Store, store, store, func() {}), nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return memoryBackend(cfg.Store, store.Store, store, func() { _ = store.Close() }), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// memoryBackend serves both embedded stores; the sqlite store persists
// through the memory store's commit hook.
func memoryBackend(name string, store *memory.Store, ping db.Pinger, closeFn func()) *backend {
	return &backend{
		name: name,
		tx:   store,
		repos: processor.Repositories{
			Patients:  store.Patients(),
			Visits:    store.Visits(),
			Locations: store.Locations(),
			Clinical:  store.Clinical(),
		},
		ping:  ping,
		close: closeFn,
	}
}

// openPool connects to PostgreSQL for the migrate commands, which have no
// use for the embedded stores.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Store != config.StorePostgres {
		return nil, fmt.Errorf("migrations need STORE=%s, got %q", config.StorePostgres, cfg.Store)
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}
