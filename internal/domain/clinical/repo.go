package clinical

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores every clinical row type. Save methods insert or replace
// by ID; Find methods return nil without an error when nothing matches.
type Repository interface {
	FindLabOrder(ctx context.Context, visitID uuid.UUID, orderNumber string) (*LabOrder, error)
	ListLabOrders(ctx context.Context, visitID uuid.UUID) ([]*LabOrder, error)
	SaveLabOrder(ctx context.Context, o *LabOrder) error
	SaveLabOrderAudit(ctx context.Context, a *LabOrderAudit) error
	DeleteLabOrder(ctx context.Context, o *LabOrder) error

	FindLabResult(ctx context.Context, orderID uuid.UUID, testCode string) (*LabResult, error)
	ListLabResults(ctx context.Context, orderID uuid.UUID) ([]*LabResult, error)
	SaveLabResult(ctx context.Context, r *LabResult) error
	SaveLabResultAudit(ctx context.Context, a *LabResultAudit) error
	DeleteLabResult(ctx context.Context, r *LabResult) error

	FindConsult(ctx context.Context, consultID string) (*ConsultRequest, error)
	ListConsults(ctx context.Context, visitID uuid.UUID) ([]*ConsultRequest, error)
	SaveConsult(ctx context.Context, r *ConsultRequest) error
	SaveConsultAudit(ctx context.Context, a *ConsultRequestAudit) error
	DeleteConsult(ctx context.Context, r *ConsultRequest) error

	FindForm(ctx context.Context, sourceFormID string) (*Form, error)
	ListFormsByVisit(ctx context.Context, visitID uuid.UUID) ([]*Form, error)
	// ListPatientForms returns forms filed against the patient with no visit.
	ListPatientForms(ctx context.Context, patientID uuid.UUID) ([]*Form, error)
	SaveForm(ctx context.Context, f *Form) error
	SaveFormAudit(ctx context.Context, a *FormAudit) error
	DeleteForm(ctx context.Context, f *Form) error

	FindFormAnswer(ctx context.Context, formID uuid.UUID, questionID string) (*FormAnswer, error)
	ListFormAnswers(ctx context.Context, formID uuid.UUID) ([]*FormAnswer, error)
	SaveFormAnswer(ctx context.Context, a *FormAnswer) error
	SaveFormAnswerAudit(ctx context.Context, a *FormAnswerAudit) error
	DeleteFormAnswer(ctx context.Context, a *FormAnswer) error
}
