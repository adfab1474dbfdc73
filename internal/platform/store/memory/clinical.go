package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/clinical"
)

type clinicalRepo struct{ s *Store }

func (r *clinicalRepo) put(ctx context.Context, fn func(st *state)) error {
	return r.s.write(ctx, func(st *state) error {
		fn(st)
		return nil
	})
}

// -- Lab orders --

func (r *clinicalRepo) FindLabOrder(ctx context.Context, visitID uuid.UUID, orderNumber string) (*clinical.LabOrder, error) {
	var out *clinical.LabOrder
	r.s.read(ctx, func(st *state) {
		out = first(st.labOrders, func(o *clinical.LabOrder) bool {
			return o.VisitID == visitID && o.OrderNumber == orderNumber
		}, (*clinical.LabOrder).Clone)
	})
	return out, nil
}

func (r *clinicalRepo) ListLabOrders(ctx context.Context, visitID uuid.UUID) ([]*clinical.LabOrder, error) {
	var out []*clinical.LabOrder
	r.s.read(ctx, func(st *state) {
		out = collect(st.labOrders, func(o *clinical.LabOrder) bool { return o.VisitID == visitID },
			(*clinical.LabOrder).Clone, func(a, b *clinical.LabOrder) bool { return a.ValidFrom.Before(b.ValidFrom) })
	})
	return out, nil
}

func (r *clinicalRepo) SaveLabOrder(ctx context.Context, o *clinical.LabOrder) error {
	return r.put(ctx, func(st *state) { st.labOrders[o.ID] = o.Clone() })
}

func (r *clinicalRepo) SaveLabOrderAudit(ctx context.Context, a *clinical.LabOrderAudit) error {
	return r.put(ctx, func(st *state) { st.labOrderAudits = append(st.labOrderAudits, a) })
}

func (r *clinicalRepo) DeleteLabOrder(ctx context.Context, o *clinical.LabOrder) error {
	return r.put(ctx, func(st *state) { delete(st.labOrders, o.ID) })
}

// -- Lab results --

func (r *clinicalRepo) FindLabResult(ctx context.Context, orderID uuid.UUID, testCode string) (*clinical.LabResult, error) {
	var out *clinical.LabResult
	r.s.read(ctx, func(st *state) {
		out = first(st.labResults, func(res *clinical.LabResult) bool {
			return res.LabOrderID == orderID && res.TestCode == testCode
		}, (*clinical.LabResult).Clone)
	})
	return out, nil
}

func (r *clinicalRepo) ListLabResults(ctx context.Context, orderID uuid.UUID) ([]*clinical.LabResult, error) {
	var out []*clinical.LabResult
	r.s.read(ctx, func(st *state) {
		out = collect(st.labResults, func(res *clinical.LabResult) bool { return res.LabOrderID == orderID },
			(*clinical.LabResult).Clone, func(a, b *clinical.LabResult) bool { return strings.Compare(a.TestCode, b.TestCode) < 0 })
	})
	return out, nil
}

func (r *clinicalRepo) SaveLabResult(ctx context.Context, res *clinical.LabResult) error {
	return r.put(ctx, func(st *state) { st.labResults[res.ID] = res.Clone() })
}

func (r *clinicalRepo) SaveLabResultAudit(ctx context.Context, a *clinical.LabResultAudit) error {
	return r.put(ctx, func(st *state) { st.labResultAudit = append(st.labResultAudit, a) })
}

func (r *clinicalRepo) DeleteLabResult(ctx context.Context, res *clinical.LabResult) error {
	return r.put(ctx, func(st *state) { delete(st.labResults, res.ID) })
}

// -- Consult requests --

func (r *clinicalRepo) FindConsult(ctx context.Context, consultID string) (*clinical.ConsultRequest, error) {
	var out *clinical.ConsultRequest
	r.s.read(ctx, func(st *state) {
		out = first(st.consults, func(c *clinical.ConsultRequest) bool { return c.ConsultID == consultID },
			(*clinical.ConsultRequest).Clone)
	})
	return out, nil
}

func (r *clinicalRepo) ListConsults(ctx context.Context, visitID uuid.UUID) ([]*clinical.ConsultRequest, error) {
	var out []*clinical.ConsultRequest
	r.s.read(ctx, func(st *state) {
		out = collect(st.consults, func(c *clinical.ConsultRequest) bool { return c.VisitID == visitID },
			(*clinical.ConsultRequest).Clone,
			func(a, b *clinical.ConsultRequest) bool { return a.RequestTime.Before(b.RequestTime) })
	})
	return out, nil
}

func (r *clinicalRepo) SaveConsult(ctx context.Context, c *clinical.ConsultRequest) error {
	return r.put(ctx, func(st *state) { st.consults[c.ID] = c.Clone() })
}

func (r *clinicalRepo) SaveConsultAudit(ctx context.Context, a *clinical.ConsultRequestAudit) error {
	return r.put(ctx, func(st *state) { st.consultAudits = append(st.consultAudits, a) })
}

func (r *clinicalRepo) DeleteConsult(ctx context.Context, c *clinical.ConsultRequest) error {
	return r.put(ctx, func(st *state) { delete(st.consults, c.ID) })
}

// -- Forms --

func byFiled(a, b *clinical.Form) bool { return a.FiledAt.Before(b.FiledAt) }

func (r *clinicalRepo) FindForm(ctx context.Context, sourceFormID string) (*clinical.Form, error) {
	var out *clinical.Form
	r.s.read(ctx, func(st *state) {
		out = first(st.forms, func(f *clinical.Form) bool { return f.SourceFormID == sourceFormID }, (*clinical.Form).Clone)
	})
	return out, nil
}

func (r *clinicalRepo) ListFormsByVisit(ctx context.Context, visitID uuid.UUID) ([]*clinical.Form, error) {
	var out []*clinical.Form
	r.s.read(ctx, func(st *state) {
		out = collect(st.forms, func(f *clinical.Form) bool { return f.VisitID != nil && *f.VisitID == visitID },
			(*clinical.Form).Clone, byFiled)
	})
	return out, nil
}

func (r *clinicalRepo) ListPatientForms(ctx context.Context, patientID uuid.UUID) ([]*clinical.Form, error) {
	var out []*clinical.Form
	r.s.read(ctx, func(st *state) {
		out = collect(st.forms, func(f *clinical.Form) bool { return f.PatientID == patientID && f.VisitID == nil },
			(*clinical.Form).Clone, byFiled)
	})
	return out, nil
}

func (r *clinicalRepo) SaveForm(ctx context.Context, f *clinical.Form) error {
	return r.put(ctx, func(st *state) { st.forms[f.ID] = f.Clone() })
}

func (r *clinicalRepo) SaveFormAudit(ctx context.Context, a *clinical.FormAudit) error {
	return r.put(ctx, func(st *state) { st.formAudits = append(st.formAudits, a) })
}

func (r *clinicalRepo) DeleteForm(ctx context.Context, f *clinical.Form) error {
	return r.put(ctx, func(st *state) { delete(st.forms, f.ID) })
}

// -- Form answers --

func (r *clinicalRepo) FindFormAnswer(ctx context.Context, formID uuid.UUID, questionID string) (*clinical.FormAnswer, error) {
	var out *clinical.FormAnswer
	r.s.read(ctx, func(st *state) {
		out = first(st.answers, func(a *clinical.FormAnswer) bool {
			return a.FormID == formID && a.QuestionID == questionID
		}, (*clinical.FormAnswer).Clone)
	})
	return out, nil
}

func (r *clinicalRepo) ListFormAnswers(ctx context.Context, formID uuid.UUID) ([]*clinical.FormAnswer, error) {
	var out []*clinical.FormAnswer
	r.s.read(ctx, func(st *state) {
		out = collect(st.answers, func(a *clinical.FormAnswer) bool { return a.FormID == formID },
			(*clinical.FormAnswer).Clone,
			func(a, b *clinical.FormAnswer) bool { return strings.Compare(a.QuestionID, b.QuestionID) < 0 })
	})
	return out, nil
}

func (r *clinicalRepo) SaveFormAnswer(ctx context.Context, a *clinical.FormAnswer) error {
	return r.put(ctx, func(st *state) { st.answers[a.ID] = a.Clone() })
}

func (r *clinicalRepo) SaveFormAnswerAudit(ctx context.Context, a *clinical.FormAnswerAudit) error {
	return r.put(ctx, func(st *state) { st.answerAudits = append(st.answerAudits, a) })
}

func (r *clinicalRepo) DeleteFormAnswer(ctx context.Context, a *clinical.FormAnswer) error {
	return r.put(ctx, func(st *state) { delete(st.answers, a.ID) })
}
