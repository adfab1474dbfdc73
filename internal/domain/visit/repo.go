package visit

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores visits and their audit trail. Save inserts or replaces
// by ID. Find methods return nil without an error when nothing matches.
type Repository interface {
	Save(ctx context.Context, v *Visit) error
	SaveAudit(ctx context.Context, a *VisitAudit) error
	Delete(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	FindByEncounter(ctx context.Context, encounter string) (*Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error)
	ListAudit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*VisitAudit, int, error)
}
