package visit

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

const visitCols = `id, encounter, patient_id, source_system, patient_class, arrival_method,
	admission_time, presentation_time, discharge_time,
	discharge_disposition, discharge_destination, valid_from, stored_from`

const auditCols = `audit_id, ` + visitCols + `, valid_until, stored_until`

func (r *repoPG) Save(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO visit (`+visitCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			encounter=$2, patient_id=$3, source_system=$4, patient_class=$5, arrival_method=$6,
			admission_time=$7, presentation_time=$8, discharge_time=$9,
			discharge_disposition=$10, discharge_destination=$11, valid_from=$12, stored_from=$13`,
		v.ID, v.EncounterNumber, v.PatientID, v.SourceSystem, v.PatientClass, v.ArrivalMethod,
		v.AdmissionTime, v.PresentationTime, v.DischargeTime,
		v.DischargeDisposition, v.DischargeDestination, v.ValidFrom, v.StoredFrom,
	)
	return err
}

func (r *repoPG) SaveAudit(ctx context.Context, a *VisitAudit) error {
	v := a.Visit
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO visit_audit (`+auditCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		a.ID, a.VisitID, v.EncounterNumber, v.PatientID, v.SourceSystem, v.PatientClass, v.ArrivalMethod,
		v.AdmissionTime, v.PresentationTime, v.DischargeTime,
		v.DischargeDisposition, v.DischargeDestination, v.ValidFrom, v.StoredFrom,
		a.ValidUntil, a.StoredUntil,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, v *Visit) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM visit WHERE id = $1`, v.ID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) FindByEncounter(ctx context.Context, encounter string) (*Visit, error) {
	v, err := scanVisit(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE encounter = $1`+db.LockClause(ctx), encounter))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+visitCols+` FROM visit WHERE patient_id = $1 ORDER BY valid_from`+db.LockClause(ctx), patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func (r *repoPG) ListAudit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*VisitAudit, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM visit_audit WHERE id = $1`, visitID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+auditCols+` FROM visit_audit
		WHERE id = $1 ORDER BY stored_until, valid_until LIMIT $2 OFFSET $3`, visitID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var audits []*VisitAudit
	for rows.Next() {
		var a VisitAudit
		v := &a.Visit
		if err := rows.Scan(&a.ID, &v.ID, &v.EncounterNumber, &v.PatientID, &v.SourceSystem,
			&v.PatientClass, &v.ArrivalMethod, &v.AdmissionTime, &v.PresentationTime, &v.DischargeTime,
			&v.DischargeDisposition, &v.DischargeDestination, &v.ValidFrom, &v.StoredFrom,
			&a.ValidUntil, &a.StoredUntil); err != nil {
			return nil, 0, err
		}
		a.VisitID = v.ID
		audits = append(audits, &a)
	}
	return audits, total, rows.Err()
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.EncounterNumber, &v.PatientID, &v.SourceSystem, &v.PatientClass, &v.ArrivalMethod,
		&v.AdmissionTime, &v.PresentationTime, &v.DischargeTime,
		&v.DischargeDisposition, &v.DischargeDestination, &v.ValidFrom, &v.StoredFrom)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
