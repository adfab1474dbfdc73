package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is one patient identity, keyed by MRN with the NHS number as a
// fallback identifier.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Mrn          *string   `db:"mrn" json:"mrn,omitempty"`
	NhsNumber    *string   `db:"nhs_number" json:"nhs_number,omitempty"`
	SourceSystem string    `db:"source_system" json:"source_system"`
	StoredFrom   time.Time `db:"stored_from" json:"stored_from"`
	// LiveID points at the surviving patient once this one was merged away.
	LiveID *uuid.UUID `db:"live_patient_id" json:"live_patient_id,omitempty"`
}

// Merged reports whether the patient was retired by a merge.
func (p *Patient) Merged() bool { return p.LiveID != nil }

// Label is a human readable identifier for logs.
func (p *Patient) Label() string {
	switch {
	case p == nil:
		return ""
	case p.Mrn != nil:
		return *p.Mrn
	case p.NhsNumber != nil:
		return "nhs:" + *p.NhsNumber
	default:
		return p.ID.String()
	}
}
