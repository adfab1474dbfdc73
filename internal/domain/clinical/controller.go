package clinical

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/rowstate"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/interchange"
)

// Controller reconciles clinical events against stored rows. Rows are
// overwritten only by events at least as recent as the stored row.
type Controller struct {
	repo   Repository
	logger zerolog.Logger
}

func NewController(repo Repository, logger zerolog.Logger) *Controller {
	return &Controller{repo: repo, logger: logger.With().Str("component", "clinical").Logger()}
}

func (c *Controller) labOrders() rowstate.Funcs[*LabOrder, *LabOrderAudit] {
	return rowstate.Funcs[*LabOrder, *LabOrderAudit]{
		SaveFn: c.repo.SaveLabOrder, SaveAuditFn: c.repo.SaveLabOrderAudit, DeleteFn: c.repo.DeleteLabOrder,
	}
}

func (c *Controller) labResults() rowstate.Funcs[*LabResult, *LabResultAudit] {
	return rowstate.Funcs[*LabResult, *LabResultAudit]{
		SaveFn: c.repo.SaveLabResult, SaveAuditFn: c.repo.SaveLabResultAudit, DeleteFn: c.repo.DeleteLabResult,
	}
}

func (c *Controller) consults() rowstate.Funcs[*ConsultRequest, *ConsultRequestAudit] {
	return rowstate.Funcs[*ConsultRequest, *ConsultRequestAudit]{
		SaveFn: c.repo.SaveConsult, SaveAuditFn: c.repo.SaveConsultAudit, DeleteFn: c.repo.DeleteConsult,
	}
}

func (c *Controller) forms() rowstate.Funcs[*Form, *FormAudit] {
	return rowstate.Funcs[*Form, *FormAudit]{
		SaveFn: c.repo.SaveForm, SaveAuditFn: c.repo.SaveFormAudit, DeleteFn: c.repo.DeleteForm,
	}
}

func (c *Controller) formAnswers() rowstate.Funcs[*FormAnswer, *FormAnswerAudit] {
	return rowstate.Funcs[*FormAnswer, *FormAnswerAudit]{
		SaveFn: c.repo.SaveFormAnswer, SaveAuditFn: c.repo.SaveFormAnswerAudit, DeleteFn: c.repo.DeleteFormAnswer,
	}
}

// updatable is the overwrite rule for clinical rows.
func updatable[E rowstate.Entity[E, A], A any](state *rowstate.RowState[E, A], stored, msgTime time.Time) bool {
	return state.Created() || !stored.After(msgTime)
}

// RecordLabOrder reconciles a lab order and its results on v.
func (c *Controller) RecordLabOrder(ctx context.Context, v *visit.Visit, msg *interchange.LabOrder, storedFrom time.Time) error {
	if v == nil {
		return adterr.MessageIgnored("lab order %s has no visit", msg.OrderNumber)
	}
	if msg.OrderNumber == "" {
		return adterr.MessageIgnored("lab order for visit %s has no order number", v.EncounterNumber)
	}
	t := msg.ValidFrom()

	order, err := c.repo.FindLabOrder(ctx, v.ID, msg.OrderNumber)
	if err != nil {
		return fmt.Errorf("find lab order %s: %w", msg.OrderNumber, err)
	}
	created := order == nil
	if created {
		order = &LabOrder{
			ID: uuid.New(), VisitID: v.ID, OrderNumber: msg.OrderNumber, SourceSystem: msg.SourceSystem,
			Temporal: Temporal{ValidFrom: t, StoredFrom: storedFrom},
		}
	}
	state := rowstate.New[*LabOrder, *LabOrderAudit](order, t, storedFrom, created)
	if updatable(state, order.ValidFrom, t) {
		if msg.TestBatteryCode != "" {
			rowstate.AssignIfDifferent(state, &order.TestBatteryCode, msg.TestBatteryCode)
		}
		rowstate.AssignFromValue(state, &order.RequestTime, msg.RequestedAt)
		rowstate.AssignIfDifferent(state, &order.SourceSystem, msg.SourceSystem)
	}
	if err := state.SaveOrAudit(ctx, c.labOrders()); err != nil {
		return fmt.Errorf("lab order %s: %w", msg.OrderNumber, err)
	}

	for _, result := range msg.Results {
		if err := c.recordLabResult(ctx, order, result, t, storedFrom); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) recordLabResult(ctx context.Context, order *LabOrder, msg interchange.LabResult, t, storedFrom time.Time) error {
	if msg.TestCode == "" {
		return adterr.RequiredDataMissing("lab order %s has a result without a test code", order.OrderNumber)
	}
	if !msg.ResultTime.IsZero() {
		t = msg.ResultTime
	}
	result, err := c.repo.FindLabResult(ctx, order.ID, msg.TestCode)
	if err != nil {
		return fmt.Errorf("find lab result %s: %w", msg.TestCode, err)
	}
	created := result == nil
	if created {
		result = &LabResult{
			ID: uuid.New(), LabOrderID: order.ID, TestCode: msg.TestCode, ResultTime: t,
			Temporal: Temporal{ValidFrom: t, StoredFrom: storedFrom},
		}
	}
	state := rowstate.New[*LabResult, *LabResultAudit](result, t, storedFrom, created)
	if updatable(state, result.ResultTime, t) {
		rowstate.AssignFromValue(state, &result.Value, msg.Value)
		rowstate.AssignFromValue(state, &result.Units, msg.Units)
		rowstate.AssignFromValue(state, &result.Abnormal, msg.Abnormal)
		rowstate.AssignIfDifferent(state, &result.ResultTime, t)
	}
	if err := state.SaveOrAudit(ctx, c.labResults()); err != nil {
		return fmt.Errorf("lab result %s/%s: %w", order.OrderNumber, msg.TestCode, err)
	}
	return nil
}

// RecordConsult reconciles a consult request on v.
func (c *Controller) RecordConsult(ctx context.Context, v *visit.Visit, msg *interchange.ConsultRequest, storedFrom time.Time) error {
	if v == nil {
		return adterr.MessageIgnored("consult %s has no visit", msg.ConsultID)
	}
	if msg.ConsultID == "" {
		return adterr.MessageIgnored("consult for visit %s has no id", v.EncounterNumber)
	}
	t := msg.ValidFrom()

	consult, err := c.repo.FindConsult(ctx, msg.ConsultID)
	if err != nil {
		return fmt.Errorf("find consult %s: %w", msg.ConsultID, err)
	}
	created := consult == nil
	if created {
		consult = &ConsultRequest{
			ID: uuid.New(), VisitID: v.ID, ConsultID: msg.ConsultID, SourceSystem: msg.SourceSystem,
			Temporal: Temporal{ValidFrom: t, StoredFrom: storedFrom},
		}
	}
	state := rowstate.New[*ConsultRequest, *ConsultRequestAudit](consult, t, storedFrom, created)
	if updatable(state, consult.ValidFrom, t) {
		rowstate.AssignIfDifferent(state, &consult.VisitID, v.ID)
		if msg.ConsultType != "" {
			rowstate.AssignIfDifferent(state, &consult.ConsultType, msg.ConsultType)
		}
		if !msg.RequestedAt.IsZero() {
			rowstate.AssignIfDifferent(state, &consult.RequestTime, msg.RequestedAt)
		}
		rowstate.AssignFromValue(state, &consult.Comments, msg.Comments)
		rowstate.AssignIfDifferent(state, &consult.Cancelled, msg.Cancelled)
		rowstate.AssignIfDifferent(state, &consult.ClosedDueToDischarge, msg.ClosedDueToDischarge)
		rowstate.AssignIfDifferent(state, &consult.SourceSystem, msg.SourceSystem)
	}
	if err := state.SaveOrAudit(ctx, c.consults()); err != nil {
		return fmt.Errorf("consult %s: %w", msg.ConsultID, err)
	}
	return nil
}

// RecordForm reconciles a filed form and its answers. v may be nil for
// forms filed against the patient.
func (c *Controller) RecordForm(ctx context.Context, p *patient.Patient, v *visit.Visit, msg *interchange.PatientForm, storedFrom time.Time) error {
	if msg.FormID == "" {
		return adterr.MessageIgnored("form for %s has no id", p.Label())
	}
	t := msg.ValidFrom()

	form, err := c.repo.FindForm(ctx, msg.FormID)
	if err != nil {
		return fmt.Errorf("find form %s: %w", msg.FormID, err)
	}
	created := form == nil
	if created {
		form = &Form{
			ID: uuid.New(), PatientID: p.ID, SourceFormID: msg.FormID, SourceSystem: msg.SourceSystem,
			Temporal: Temporal{ValidFrom: t, StoredFrom: storedFrom},
		}
	}
	var visitID *uuid.UUID
	if v != nil {
		visitID = &v.ID
	}
	state := rowstate.New[*Form, *FormAudit](form, t, storedFrom, created)
	if updatable(state, form.ValidFrom, t) {
		rowstate.AssignPtrIfDifferent(state, &form.VisitID, visitID)
		if msg.FormName != "" {
			rowstate.AssignIfDifferent(state, &form.FormName, msg.FormName)
		}
		if !msg.FiledAt.IsZero() {
			rowstate.AssignIfDifferent(state, &form.FiledAt, msg.FiledAt)
		}
		rowstate.AssignIfDifferent(state, &form.SourceSystem, msg.SourceSystem)
	}
	if err := state.SaveOrAudit(ctx, c.forms()); err != nil {
		return fmt.Errorf("form %s: %w", msg.FormID, err)
	}

	for _, answer := range msg.Answers {
		if err := c.recordFormAnswer(ctx, form, answer, t, storedFrom); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) recordFormAnswer(ctx context.Context, form *Form, msg interchange.FormAnswer, t, storedFrom time.Time) error {
	if msg.QuestionID == "" {
		return adterr.RequiredDataMissing("form %s has an answer without a question id", form.SourceFormID)
	}
	answer, err := c.repo.FindFormAnswer(ctx, form.ID, msg.QuestionID)
	if err != nil {
		return fmt.Errorf("find form answer %s: %w", msg.QuestionID, err)
	}
	created := answer == nil
	if created {
		answer = &FormAnswer{
			ID: uuid.New(), FormID: form.ID, QuestionID: msg.QuestionID,
			Temporal: Temporal{ValidFrom: t, StoredFrom: storedFrom},
		}
	}
	state := rowstate.New[*FormAnswer, *FormAnswerAudit](answer, t, storedFrom, created)
	if updatable(state, answer.ValidFrom, t) {
		rowstate.AssignFromValue(state, &answer.Value, msg.Value)
	}
	if err := state.SaveOrAudit(ctx, c.formAnswers()); err != nil {
		return fmt.Errorf("form answer %s/%s: %w", form.SourceFormID, msg.QuestionID, err)
	}
	return nil
}

// DeleteLabOrders audits and removes the lab orders of v, each after its
// results. It returns the number of orders and results removed.
func (c *Controller) DeleteLabOrders(ctx context.Context, v *visit.Visit, validUntil, storedUntil time.Time) (orders, results int, err error) {
	all, err := c.repo.ListLabOrders(ctx, v.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list lab orders of %s: %w", v.EncounterNumber, err)
	}
	for _, o := range all {
		rs, err := c.repo.ListLabResults(ctx, o.ID)
		if err != nil {
			return orders, results, fmt.Errorf("list lab results of %s: %w", o.OrderNumber, err)
		}
		for _, r := range rs {
			if err := rowstate.DeleteAudited(ctx, c.labResults(), r, validUntil, storedUntil); err != nil {
				return orders, results, fmt.Errorf("lab result %s: %w", r.TestCode, err)
			}
			results++
		}
		if err := rowstate.DeleteAudited(ctx, c.labOrders(), o, validUntil, storedUntil); err != nil {
			return orders, results, fmt.Errorf("lab order %s: %w", o.OrderNumber, err)
		}
		orders++
	}
	return orders, results, nil
}

// DeleteConsults audits and removes the consult requests of v.
func (c *Controller) DeleteConsults(ctx context.Context, v *visit.Visit, validUntil, storedUntil time.Time) (int, error) {
	all, err := c.repo.ListConsults(ctx, v.ID)
	if err != nil {
		return 0, fmt.Errorf("list consults of %s: %w", v.EncounterNumber, err)
	}
	for i, r := range all {
		if err := rowstate.DeleteAudited(ctx, c.consults(), r, validUntil, storedUntil); err != nil {
			return i, fmt.Errorf("consult %s: %w", r.ConsultID, err)
		}
	}
	return len(all), nil
}

// VisitForms returns the forms filed against v.
func (c *Controller) VisitForms(ctx context.Context, v *visit.Visit) ([]*Form, error) {
	forms, err := c.repo.ListFormsByVisit(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("list forms of %s: %w", v.EncounterNumber, err)
	}
	return forms, nil
}

// PatientForms returns the forms filed against p with no visit.
func (c *Controller) PatientForms(ctx context.Context, p *patient.Patient) ([]*Form, error) {
	forms, err := c.repo.ListPatientForms(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list forms of %s: %w", p.Label(), err)
	}
	return forms, nil
}

// DeleteForms audits and removes forms, each after its answers. It returns
// the number of forms and answers removed.
func (c *Controller) DeleteForms(ctx context.Context, forms []*Form, validUntil, storedUntil time.Time) (deletedForms, answers int, err error) {
	for _, f := range forms {
		as, err := c.repo.ListFormAnswers(ctx, f.ID)
		if err != nil {
			return deletedForms, answers, fmt.Errorf("list answers of form %s: %w", f.SourceFormID, err)
		}
		for _, a := range as {
			if err := rowstate.DeleteAudited(ctx, c.formAnswers(), a, validUntil, storedUntil); err != nil {
				return deletedForms, answers, fmt.Errorf("form answer %s: %w", a.QuestionID, err)
			}
			answers++
		}
		if err := rowstate.DeleteAudited(ctx, c.forms(), f, validUntil, storedUntil); err != nil {
			return deletedForms, answers, fmt.Errorf("form %s: %w", f.SourceFormID, err)
		}
		deletedForms++
	}
	return deletedForms, answers, nil
}
