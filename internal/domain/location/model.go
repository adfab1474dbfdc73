package location

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/rowstate"
)

// Location is an interned bed or area identifier, such as "T42^T42 BY03^BY03-17".
// Rows are created on first reference and never change.
type Location struct {
	ID             uuid.UUID `db:"id" json:"id"`
	LocationString string    `db:"location_string" json:"location_string"`
}

// LocationVisit is one stay of a visit at a location. A nil DischargeTime
// means the stay is open; a visit has at most one open stay.
type LocationVisit struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	VisitID           uuid.UUID  `db:"visit_id" json:"visit_id"`
	LocationID        uuid.UUID  `db:"location_id" json:"location_id"`
	AdmissionTime     time.Time  `db:"admission_time" json:"admission_time"`
	DischargeTime     *time.Time `db:"discharge_time" json:"discharge_time,omitempty"`
	InferredAdmission bool       `db:"inferred_admission" json:"inferred_admission"`
	InferredDischarge bool       `db:"inferred_discharge" json:"inferred_discharge"`
	SourceSystem      string     `db:"source_system" json:"source_system"`
	ValidFrom         time.Time  `db:"valid_from" json:"valid_from"`
	StoredFrom        time.Time  `db:"stored_from" json:"stored_from"`
}

type LocationVisitAudit struct {
	ID              uuid.UUID     `db:"audit_id" json:"id"`
	LocationVisitID uuid.UUID     `db:"id" json:"location_visit_id"`
	LocationVisit   LocationVisit `json:"location_visit"`
	ValidUntil      time.Time     `db:"valid_until" json:"valid_until"`
	StoredUntil     time.Time     `db:"stored_until" json:"stored_until"`
}

// State is the reconciliation wrapper for a location visit.
type State = rowstate.RowState[*LocationVisit, *LocationVisitAudit]

func newState(lv *LocationVisit, validFrom, storedFrom time.Time, created bool) *State {
	return rowstate.New[*LocationVisit, *LocationVisitAudit](lv, validFrom, storedFrom, created)
}

func (lv *LocationVisit) Clone() *LocationVisit {
	c := *lv
	if lv.DischargeTime != nil {
		t := *lv.DischargeTime
		c.DischargeTime = &t
	}
	return &c
}

func (lv *LocationVisit) AuditRecord(validUntil, storedUntil time.Time) *LocationVisitAudit {
	return &LocationVisitAudit{
		ID:              uuid.New(),
		LocationVisitID: lv.ID,
		LocationVisit:   *lv.Clone(),
		ValidUntil:      validUntil,
		StoredUntil:     storedUntil,
	}
}

func (lv *LocationVisit) SetValidFrom(t time.Time)  { lv.ValidFrom = t }
func (lv *LocationVisit) SetStoredFrom(t time.Time) { lv.StoredFrom = t }

// IsOpen reports whether the stay has not been discharged.
func (lv *LocationVisit) IsOpen() bool { return lv.DischargeTime == nil }
