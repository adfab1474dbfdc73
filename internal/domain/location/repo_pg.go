package location

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

const lvCols = `id, visit_id, location_id, admission_time, discharge_time,
	inferred_admission, inferred_discharge, source_system, valid_from, stored_from`

func (r *repoPG) FindLocation(ctx context.Context, locationString string) (*Location, error) {
	var l Location
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, location_string FROM location WHERE location_string = $1`, locationString,
	).Scan(&l.ID, &l.LocationString)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repoPG) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	var l Location
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, location_string FROM location WHERE id = $1`, id,
	).Scan(&l.ID, &l.LocationString)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLocation inserts l, adopting the existing row when a concurrent
// transaction interned the same string first.
func (r *repoPG) CreateLocation(ctx context.Context, l *Location) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO location (id, location_string) VALUES ($1, $2)
		ON CONFLICT (location_string) DO UPDATE SET location_string = EXCLUDED.location_string
		RETURNING id`,
		l.ID, l.LocationString,
	).Scan(&l.ID)
}

func (r *repoPG) Save(ctx context.Context, lv *LocationVisit) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO location_visit (`+lvCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			visit_id=$2, location_id=$3, admission_time=$4, discharge_time=$5,
			inferred_admission=$6, inferred_discharge=$7, source_system=$8, valid_from=$9, stored_from=$10`,
		lv.ID, lv.VisitID, lv.LocationID, lv.AdmissionTime, lv.DischargeTime,
		lv.InferredAdmission, lv.InferredDischarge, lv.SourceSystem, lv.ValidFrom, lv.StoredFrom,
	)
	return err
}

func (r *repoPG) SaveAudit(ctx context.Context, a *LocationVisitAudit) error {
	lv := a.LocationVisit
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO location_visit_audit (audit_id, `+lvCols+`, valid_until, stored_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.LocationVisitID, lv.VisitID, lv.LocationID, lv.AdmissionTime, lv.DischargeTime,
		lv.InferredAdmission, lv.InferredDischarge, lv.SourceSystem, lv.ValidFrom, lv.StoredFrom,
		a.ValidUntil, a.StoredUntil,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, lv *LocationVisit) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM location_visit WHERE id = $1`, lv.ID)
	return err
}

func (r *repoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*LocationVisit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+lvCols+` FROM location_visit
		WHERE visit_id = $1 ORDER BY admission_time, valid_from`+db.LockClause(ctx), visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLocationVisits(rows)
}

func (r *repoPG) ListOpenAtLocation(ctx context.Context, locationID uuid.UUID) ([]*LocationVisit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+lvCols+` FROM location_visit
		WHERE location_id = $1 AND discharge_time IS NULL ORDER BY admission_time`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLocationVisits(rows)
}

func collectLocationVisits(rows pgx.Rows) ([]*LocationVisit, error) {
	var out []*LocationVisit
	for rows.Next() {
		var lv LocationVisit
		if err := rows.Scan(&lv.ID, &lv.VisitID, &lv.LocationID, &lv.AdmissionTime, &lv.DischargeTime,
			&lv.InferredAdmission, &lv.InferredDischarge, &lv.SourceSystem, &lv.ValidFrom, &lv.StoredFrom); err != nil {
			return nil, err
		}
		out = append(out, &lv)
	}
	return out, rows.Err()
}
