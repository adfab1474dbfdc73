package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/rowstate"
)

// Visit is one hospital visit, keyed by its encounter number.
type Visit struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	EncounterNumber      string     `db:"encounter" json:"encounter"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	SourceSystem         string     `db:"source_system" json:"source_system"`
	PatientClass         *string    `db:"patient_class" json:"patient_class,omitempty"`
	ArrivalMethod        *string    `db:"arrival_method" json:"arrival_method,omitempty"`
	AdmissionTime        *time.Time `db:"admission_time" json:"admission_time,omitempty"`
	PresentationTime     *time.Time `db:"presentation_time" json:"presentation_time,omitempty"`
	DischargeTime        *time.Time `db:"discharge_time" json:"discharge_time,omitempty"`
	DischargeDisposition *string    `db:"discharge_disposition" json:"discharge_disposition,omitempty"`
	DischargeDestination *string    `db:"discharge_destination" json:"discharge_destination,omitempty"`
	ValidFrom            time.Time  `db:"valid_from" json:"valid_from"`
	StoredFrom           time.Time  `db:"stored_from" json:"stored_from"`
}

// VisitAudit is a Visit as it was until ValidUntil/StoredUntil.
type VisitAudit struct {
	ID          uuid.UUID `db:"id" json:"id"`
	VisitID     uuid.UUID `db:"visit_id" json:"visit_id"`
	Visit       Visit     `json:"visit"`
	ValidUntil  time.Time `db:"valid_until" json:"valid_until"`
	StoredUntil time.Time `db:"stored_until" json:"stored_until"`
}

// State is the reconciliation wrapper for a visit.
type State = rowstate.RowState[*Visit, *VisitAudit]

func newState(v *Visit, validFrom, storedFrom time.Time, created bool) *State {
	return rowstate.New[*Visit, *VisitAudit](v, validFrom, storedFrom, created)
}

func (v *Visit) Clone() *Visit {
	c := *v
	c.PatientClass = clonePtr(v.PatientClass)
	c.ArrivalMethod = clonePtr(v.ArrivalMethod)
	c.AdmissionTime = clonePtr(v.AdmissionTime)
	c.PresentationTime = clonePtr(v.PresentationTime)
	c.DischargeTime = clonePtr(v.DischargeTime)
	c.DischargeDisposition = clonePtr(v.DischargeDisposition)
	c.DischargeDestination = clonePtr(v.DischargeDestination)
	return &c
}

func (v *Visit) AuditRecord(validUntil, storedUntil time.Time) *VisitAudit {
	return &VisitAudit{
		ID:          uuid.New(),
		VisitID:     v.ID,
		Visit:       *v.Clone(),
		ValidUntil:  validUntil,
		StoredUntil: storedUntil,
	}
}

func (v *Visit) SetValidFrom(t time.Time)  { v.ValidFrom = t }
func (v *Visit) SetStoredFrom(t time.Time) { v.StoredFrom = t }

// IsDischarged reports whether the visit has a discharge time.
func (v *Visit) IsDischarged() bool { return v.DischargeTime != nil }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
