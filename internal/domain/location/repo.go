package location

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores locations and location visits. Save inserts or
// replaces a location visit by ID. FindLocation returns nil without an
// error for an unknown string.
type Repository interface {
	FindLocation(ctx context.Context, locationString string) (*Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*Location, error)
	CreateLocation(ctx context.Context, l *Location) error

	Save(ctx context.Context, lv *LocationVisit) error
	SaveAudit(ctx context.Context, a *LocationVisitAudit) error
	Delete(ctx context.Context, lv *LocationVisit) error
	// ListByVisit returns every stay of a visit ordered by admission time.
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*LocationVisit, error)
	ListOpenAtLocation(ctx context.Context, locationID uuid.UUID) ([]*LocationVisit, error)
}
