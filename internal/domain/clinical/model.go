// Package clinical records the rows that hang off a visit: lab orders and
// their results, consult requests, and filed forms with their answers.
package clinical

import (
	"time"

	"github.com/google/uuid"
)

// Temporal carries the validity stamps every clinical row shares.
type Temporal struct {
	ValidFrom  time.Time `db:"valid_from" json:"valid_from"`
	StoredFrom time.Time `db:"stored_from" json:"stored_from"`
}

func (t *Temporal) SetValidFrom(v time.Time)  { t.ValidFrom = v }
func (t *Temporal) SetStoredFrom(v time.Time) { t.StoredFrom = v }

// Audit is a clinical row as it was until ValidUntil/StoredUntil.
type Audit[T any] struct {
	ID          uuid.UUID `db:"audit_id" json:"id"`
	RowID       uuid.UUID `db:"id" json:"row_id"`
	Row         T         `json:"row"`
	ValidUntil  time.Time `db:"valid_until" json:"valid_until"`
	StoredUntil time.Time `db:"stored_until" json:"stored_until"`
}

func newAudit[T any](id uuid.UUID, row T, validUntil, storedUntil time.Time) *Audit[T] {
	return &Audit[T]{ID: uuid.New(), RowID: id, Row: row, ValidUntil: validUntil, StoredUntil: storedUntil}
}

// Pointer fields below are replaced on change and never written through,
// so a shallow copy is a full snapshot.

type LabOrder struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	VisitID         uuid.UUID  `db:"visit_id" json:"visit_id"`
	OrderNumber     string     `db:"order_number" json:"order_number"`
	TestBatteryCode string     `db:"test_battery_code" json:"test_battery_code"`
	RequestTime     *time.Time `db:"request_time" json:"request_time,omitempty"`
	SourceSystem    string     `db:"source_system" json:"source_system"`
	Temporal
}

type LabOrderAudit = Audit[LabOrder]

func (o *LabOrder) Clone() *LabOrder { c := *o; return &c }
func (o *LabOrder) AuditRecord(validUntil, storedUntil time.Time) *LabOrderAudit {
	return newAudit(o.ID, *o, validUntil, storedUntil)
}

type LabResult struct {
	ID         uuid.UUID `db:"id" json:"id"`
	LabOrderID uuid.UUID `db:"lab_order_id" json:"lab_order_id"`
	TestCode   string    `db:"test_code" json:"test_code"`
	Value      *string   `db:"value" json:"value,omitempty"`
	Units      *string   `db:"units" json:"units,omitempty"`
	Abnormal   *string   `db:"abnormal_flag" json:"abnormal_flag,omitempty"`
	ResultTime time.Time `db:"result_time" json:"result_time"`
	Temporal
}

type LabResultAudit = Audit[LabResult]

func (r *LabResult) Clone() *LabResult { c := *r; return &c }
func (r *LabResult) AuditRecord(validUntil, storedUntil time.Time) *LabResultAudit {
	return newAudit(r.ID, *r, validUntil, storedUntil)
}

type ConsultRequest struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	VisitID              uuid.UUID `db:"visit_id" json:"visit_id"`
	ConsultID            string    `db:"consult_id" json:"consult_id"`
	ConsultType          string    `db:"consult_type" json:"consult_type"`
	RequestTime          time.Time `db:"request_time" json:"request_time"`
	Comments             *string   `db:"comments" json:"comments,omitempty"`
	Cancelled            bool      `db:"cancelled" json:"cancelled"`
	ClosedDueToDischarge bool      `db:"closed_due_to_discharge" json:"closed_due_to_discharge"`
	SourceSystem         string    `db:"source_system" json:"source_system"`
	Temporal
}

type ConsultRequestAudit = Audit[ConsultRequest]

func (r *ConsultRequest) Clone() *ConsultRequest { c := *r; return &c }
func (r *ConsultRequest) AuditRecord(validUntil, storedUntil time.Time) *ConsultRequestAudit {
	return newAudit(r.ID, *r, validUntil, storedUntil)
}

// Form is a filed clinical form. VisitID is nil for forms filed against the
// patient rather than a visit.
type Form struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitID      *uuid.UUID `db:"visit_id" json:"visit_id,omitempty"`
	SourceFormID string     `db:"source_form_id" json:"source_form_id"`
	FormName     string     `db:"form_name" json:"form_name"`
	FiledAt      time.Time  `db:"filed_at" json:"filed_at"`
	SourceSystem string     `db:"source_system" json:"source_system"`
	Temporal
}

type FormAudit = Audit[Form]

func (f *Form) Clone() *Form { c := *f; return &c }
func (f *Form) AuditRecord(validUntil, storedUntil time.Time) *FormAudit {
	return newAudit(f.ID, *f, validUntil, storedUntil)
}

type FormAnswer struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FormID     uuid.UUID `db:"form_id" json:"form_id"`
	QuestionID string    `db:"question_id" json:"question_id"`
	Value      *string   `db:"value" json:"value,omitempty"`
	Temporal
}

type FormAnswerAudit = Audit[FormAnswer]

func (a *FormAnswer) Clone() *FormAnswer { c := *a; return &c }
func (a *FormAnswer) AuditRecord(validUntil, storedUntil time.Time) *FormAnswerAudit {
	return newAudit(a.ID, *a, validUntil, storedUntil)
}
