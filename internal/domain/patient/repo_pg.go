package patient

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

const patientCols = `id, mrn, nhs_number, source_system, stored_from, live_patient_id`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, mrn, nhs_number, source_system, stored_from, live_patient_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Mrn, p.NhsNumber, p.SourceSystem, p.StoredFrom, p.LiveID,
	)
	return err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET mrn = $2, nhs_number = $3, source_system = $4, stored_from = $5,
			live_patient_id = $6
		WHERE id = $1`,
		p.ID, p.Mrn, p.NhsNumber, p.SourceSystem, p.StoredFrom, p.LiveID,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) FindByMrn(ctx context.Context, mrn string) (*Patient, error) {
	return optional(scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE mrn = $1`+db.LockClause(ctx), mrn)))
}

func (r *repoPG) FindByNhsNumber(ctx context.Context, nhsNumber string) (*Patient, error) {
	return optional(scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE nhs_number = $1
		ORDER BY stored_from LIMIT 1`+db.LockClause(ctx), nhsNumber)))
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Mrn, &p.NhsNumber, &p.SourceSystem, &p.StoredFrom, &p.LiveID); err != nil {
		return nil, err
	}
	return &p, nil
}

func optional(p *Patient, err error) (*Patient, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}
