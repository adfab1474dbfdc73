package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository looks patients up by natural key. Find methods return nil
// without an error when nothing matches.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByMrn(ctx context.Context, mrn string) (*Patient, error)
	FindByNhsNumber(ctx context.Context, nhsNumber string) (*Patient, error)
}
