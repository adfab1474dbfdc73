package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/adtcore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const (
	labOrderCols   = `id, visit_id, order_number, test_battery_code, request_time, source_system, valid_from, stored_from`
	labResultCols  = `id, lab_order_id, test_code, value, units, abnormal_flag, result_time, valid_from, stored_from`
	consultCols    = `id, visit_id, consult_id, consult_type, request_time, comments, cancelled, closed_due_to_discharge, source_system, valid_from, stored_from`
	formCols       = `id, patient_id, visit_id, source_form_id, form_name, filed_at, source_system, valid_from, stored_from`
	formAnswerCols = `id, form_id, question_id, value, valid_from, stored_from`
)

// queryOne runs a single-row lookup, mapping no rows to nil.
func queryOne[T any](ctx context.Context, r *repoPG, sql string, args ...any) (*T, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql+db.LockClause(ctx), args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return row, err
}

func queryAll[T any](ctx context.Context, r *repoPG, sql string, args ...any) ([]*T, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...any) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	return err
}

// -- Lab orders --

func (r *repoPG) FindLabOrder(ctx context.Context, visitID uuid.UUID, orderNumber string) (*LabOrder, error) {
	return queryOne[LabOrder](ctx, r, `SELECT `+labOrderCols+` FROM lab_order
		WHERE visit_id = $1 AND order_number = $2`, visitID, orderNumber)
}

func (r *repoPG) ListLabOrders(ctx context.Context, visitID uuid.UUID) ([]*LabOrder, error) {
	return queryAll[LabOrder](ctx, r, `SELECT `+labOrderCols+` FROM lab_order
		WHERE visit_id = $1 ORDER BY valid_from`, visitID)
}

func (r *repoPG) SaveLabOrder(ctx context.Context, o *LabOrder) error {
	return r.exec(ctx, `
		INSERT INTO lab_order (`+labOrderCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			visit_id=$2, order_number=$3, test_battery_code=$4, request_time=$5,
			source_system=$6, valid_from=$7, stored_from=$8`,
		o.ID, o.VisitID, o.OrderNumber, o.TestBatteryCode, o.RequestTime, o.SourceSystem, o.ValidFrom, o.StoredFrom,
	)
}

func (r *repoPG) SaveLabOrderAudit(ctx context.Context, a *LabOrderAudit) error {
	o := a.Row
	return r.exec(ctx, `
		INSERT INTO lab_order_audit (audit_id, `+labOrderCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.RowID, o.VisitID, o.OrderNumber, o.TestBatteryCode, o.RequestTime, o.SourceSystem,
		o.ValidFrom, o.StoredFrom, a.ValidUntil, a.StoredUntil,
	)
}

func (r *repoPG) DeleteLabOrder(ctx context.Context, o *LabOrder) error {
	return r.exec(ctx, `DELETE FROM lab_order WHERE id = $1`, o.ID)
}

// -- Lab results --

func (r *repoPG) FindLabResult(ctx context.Context, orderID uuid.UUID, testCode string) (*LabResult, error) {
	return queryOne[LabResult](ctx, r, `SELECT `+labResultCols+` FROM lab_result
		WHERE lab_order_id = $1 AND test_code = $2`, orderID, testCode)
}

func (r *repoPG) ListLabResults(ctx context.Context, orderID uuid.UUID) ([]*LabResult, error) {
	return queryAll[LabResult](ctx, r, `SELECT `+labResultCols+` FROM lab_result
		WHERE lab_order_id = $1 ORDER BY test_code`, orderID)
}

func (r *repoPG) SaveLabResult(ctx context.Context, res *LabResult) error {
	return r.exec(ctx, `
		INSERT INTO lab_result (`+labResultCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			lab_order_id=$2, test_code=$3, value=$4, units=$5, abnormal_flag=$6,
			result_time=$7, valid_from=$8, stored_from=$9`,
		res.ID, res.LabOrderID, res.TestCode, res.Value, res.Units, res.Abnormal, res.ResultTime,
		res.ValidFrom, res.StoredFrom,
	)
}

func (r *repoPG) SaveLabResultAudit(ctx context.Context, a *LabResultAudit) error {
	res := a.Row
	return r.exec(ctx, `
		INSERT INTO lab_result_audit (audit_id, `+labResultCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.RowID, res.LabOrderID, res.TestCode, res.Value, res.Units, res.Abnormal, res.ResultTime,
		res.ValidFrom, res.StoredFrom, a.ValidUntil, a.StoredUntil,
	)
}

func (r *repoPG) DeleteLabResult(ctx context.Context, res *LabResult) error {
	return r.exec(ctx, `DELETE FROM lab_result WHERE id = $1`, res.ID)
}

// -- Consult requests --

func (r *repoPG) FindConsult(ctx context.Context, consultID string) (*ConsultRequest, error) {
	return queryOne[ConsultRequest](ctx, r, `SELECT `+consultCols+` FROM consult_request
		WHERE consult_id = $1`, consultID)
}

func (r *repoPG) ListConsults(ctx context.Context, visitID uuid.UUID) ([]*ConsultRequest, error) {
	return queryAll[ConsultRequest](ctx, r, `SELECT `+consultCols+` FROM consult_request
		WHERE visit_id = $1 ORDER BY request_time`, visitID)
}

func (r *repoPG) SaveConsult(ctx context.Context, c *ConsultRequest) error {
	return r.exec(ctx, `
		INSERT INTO consult_request (`+consultCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			visit_id=$2, consult_id=$3, consult_type=$4, request_time=$5, comments=$6, cancelled=$7,
			closed_due_to_discharge=$8, source_system=$9, valid_from=$10, stored_from=$11`,
		c.ID, c.VisitID, c.ConsultID, c.ConsultType, c.RequestTime, c.Comments, c.Cancelled,
		c.ClosedDueToDischarge, c.SourceSystem, c.ValidFrom, c.StoredFrom,
	)
}

func (r *repoPG) SaveConsultAudit(ctx context.Context, a *ConsultRequestAudit) error {
	c := a.Row
	return r.exec(ctx, `
		INSERT INTO consult_request_audit (audit_id, `+consultCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.RowID, c.VisitID, c.ConsultID, c.ConsultType, c.RequestTime, c.Comments, c.Cancelled,
		c.ClosedDueToDischarge, c.SourceSystem, c.ValidFrom, c.StoredFrom, a.ValidUntil, a.StoredUntil,
	)
}

func (r *repoPG) DeleteConsult(ctx context.Context, c *ConsultRequest) error {
	return r.exec(ctx, `DELETE FROM consult_request WHERE id = $1`, c.ID)
}

// -- Forms --

func (r *repoPG) FindForm(ctx context.Context, sourceFormID string) (*Form, error) {
	return queryOne[Form](ctx, r, `SELECT `+formCols+` FROM form WHERE source_form_id = $1`, sourceFormID)
}

func (r *repoPG) ListFormsByVisit(ctx context.Context, visitID uuid.UUID) ([]*Form, error) {
	return queryAll[Form](ctx, r, `SELECT `+formCols+` FROM form
		WHERE visit_id = $1 ORDER BY filed_at`, visitID)
}

func (r *repoPG) ListPatientForms(ctx context.Context, patientID uuid.UUID) ([]*Form, error) {
	return queryAll[Form](ctx, r, `SELECT `+formCols+` FROM form
		WHERE patient_id = $1 AND visit_id IS NULL ORDER BY filed_at`, patientID)
}

func (r *repoPG) SaveForm(ctx context.Context, f *Form) error {
	return r.exec(ctx, `
		INSERT INTO form (`+formCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			patient_id=$2, visit_id=$3, source_form_id=$4, form_name=$5, filed_at=$6,
			source_system=$7, valid_from=$8, stored_from=$9`,
		f.ID, f.PatientID, f.VisitID, f.SourceFormID, f.FormName, f.FiledAt, f.SourceSystem, f.ValidFrom, f.StoredFrom,
	)
}

func (r *repoPG) SaveFormAudit(ctx context.Context, a *FormAudit) error {
	f := a.Row
	return r.exec(ctx, `
		INSERT INTO form_audit (audit_id, `+formCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.RowID, f.PatientID, f.VisitID, f.SourceFormID, f.FormName, f.FiledAt, f.SourceSystem,
		f.ValidFrom, f.StoredFrom, a.ValidUntil, a.StoredUntil,
	)
}

func (r *repoPG) DeleteForm(ctx context.Context, f *Form) error {
	return r.exec(ctx, `DELETE FROM form WHERE id = $1`, f.ID)
}

// -- Form answers --

func (r *repoPG) FindFormAnswer(ctx context.Context, formID uuid.UUID, questionID string) (*FormAnswer, error) {
	return queryOne[FormAnswer](ctx, r, `SELECT `+formAnswerCols+` FROM form_answer
		WHERE form_id = $1 AND question_id = $2`, formID, questionID)
}

func (r *repoPG) ListFormAnswers(ctx context.Context, formID uuid.UUID) ([]*FormAnswer, error) {
	return queryAll[FormAnswer](ctx, r, `SELECT `+formAnswerCols+` FROM form_answer
		WHERE form_id = $1 ORDER BY question_id`, formID)
}

func (r *repoPG) SaveFormAnswer(ctx context.Context, a *FormAnswer) error {
	return r.exec(ctx, `
		INSERT INTO form_answer (`+formAnswerCols+`) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			form_id=$2, question_id=$3, value=$4, valid_from=$5, stored_from=$6`,
		a.ID, a.FormID, a.QuestionID, a.Value, a.ValidFrom, a.StoredFrom,
	)
}

func (r *repoPG) SaveFormAnswerAudit(ctx context.Context, a *FormAnswerAudit) error {
	ans := a.Row
	return r.exec(ctx, `
		INSERT INTO form_answer_audit (audit_id, `+formAnswerCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.RowID, ans.FormID, ans.QuestionID, ans.Value, ans.ValidFrom, ans.StoredFrom,
		a.ValidUntil, a.StoredUntil,
	)
}

func (r *repoPG) DeleteFormAnswer(ctx context.Context, a *FormAnswer) error {
	return r.exec(ctx, `DELETE FROM form_answer WHERE id = $1`, a.ID)
}
