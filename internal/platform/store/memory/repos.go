package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/pkg/pagination"
)

var errNotFound = errors.New("not found")

// -- Patients --

type patientRepo struct{ s *Store }

func clonePatient(p *patient.Patient) *patient.Patient { c := *p; return &c }

func (r *patientRepo) Create(ctx context.Context, p *patient.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.s.write(ctx, func(st *state) error {
		st.patients[p.ID] = clonePatient(p)
		return nil
	})
}

func (r *patientRepo) Update(ctx context.Context, p *patient.Patient) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.patients[p.ID]; !ok {
			return fmt.Errorf("patient %s: %w", p.ID, errNotFound)
		}
		st.patients[p.ID] = clonePatient(p)
		return nil
	})
}

func (r *patientRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	var out *patient.Patient
	r.s.read(ctx, func(st *state) {
		if p, ok := st.patients[id]; ok {
			out = clonePatient(p)
		}
	})
	if out == nil {
		return nil, fmt.Errorf("patient %s: %w", id, errNotFound)
	}
	return out, nil
}

func (r *patientRepo) FindByMrn(ctx context.Context, mrn string) (*patient.Patient, error) {
	var out *patient.Patient
	r.s.read(ctx, func(st *state) {
		out = first(st.patients, func(p *patient.Patient) bool { return p.Mrn != nil && *p.Mrn == mrn }, clonePatient)
	})
	return out, nil
}

func (r *patientRepo) FindByNhsNumber(ctx context.Context, nhsNumber string) (*patient.Patient, error) {
	var out *patient.Patient
	r.s.read(ctx, func(st *state) {
		out = first(st.patients, func(p *patient.Patient) bool {
			return p.NhsNumber != nil && *p.NhsNumber == nhsNumber
		}, clonePatient)
	})
	return out, nil
}

// -- Visits --

type visitRepo struct{ s *Store }

func (r *visitRepo) Save(ctx context.Context, v *visit.Visit) error {
	return r.s.write(ctx, func(st *state) error {
		for id, other := range st.visits {
			if id != v.ID && other.EncounterNumber == v.EncounterNumber {
				return fmt.Errorf("visit %s already stored", v.EncounterNumber)
			}
		}
		st.visits[v.ID] = v.Clone()
		return nil
	})
}

func (r *visitRepo) SaveAudit(ctx context.Context, a *visit.VisitAudit) error {
	return r.s.write(ctx, func(st *state) error {
		st.visitAudits = append(st.visitAudits, a)
		return nil
	})
}

func (r *visitRepo) Delete(ctx context.Context, v *visit.Visit) error {
	return r.s.write(ctx, func(st *state) error {
		delete(st.visits, v.ID)
		return nil
	})
}

func (r *visitRepo) GetByID(ctx context.Context, id uuid.UUID) (*visit.Visit, error) {
	var out *visit.Visit
	r.s.read(ctx, func(st *state) {
		if v, ok := st.visits[id]; ok {
			out = v.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("visit %s: %w", id, errNotFound)
	}
	return out, nil
}

func (r *visitRepo) FindByEncounter(ctx context.Context, encounter string) (*visit.Visit, error) {
	var out *visit.Visit
	r.s.read(ctx, func(st *state) {
		out = first(st.visits, func(v *visit.Visit) bool { return v.EncounterNumber == encounter }, (*visit.Visit).Clone)
	})
	return out, nil
}

func (r *visitRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*visit.Visit, error) {
	var out []*visit.Visit
	r.s.read(ctx, func(st *state) {
		out = collect(st.visits, func(v *visit.Visit) bool { return v.PatientID == patientID }, (*visit.Visit).Clone,
			func(a, b *visit.Visit) bool { return a.ValidFrom.Before(b.ValidFrom) })
	})
	return out, nil
}

func (r *visitRepo) ListAudit(ctx context.Context, visitID uuid.UUID, limit, offset int) ([]*visit.VisitAudit, int, error) {
	var all []*visit.VisitAudit
	r.s.read(ctx, func(st *state) {
		for _, a := range st.visitAudits {
			if a.VisitID == visitID {
				all = append(all, a)
			}
		}
	})
	return pagination.Slice(all, limit, offset), len(all), nil
}

// -- Locations --

type locationRepo struct{ s *Store }

func cloneLocation(l *location.Location) *location.Location { c := *l; return &c }

func (r *locationRepo) FindLocation(ctx context.Context, locationString string) (*location.Location, error) {
	var out *location.Location
	r.s.read(ctx, func(st *state) {
		out = first(st.locations, func(l *location.Location) bool { return l.LocationString == locationString }, cloneLocation)
	})
	return out, nil
}

func (r *locationRepo) GetLocation(ctx context.Context, id uuid.UUID) (*location.Location, error) {
	var out *location.Location
	r.s.read(ctx, func(st *state) {
		if l, ok := st.locations[id]; ok {
			out = cloneLocation(l)
		}
	})
	if out == nil {
		return nil, fmt.Errorf("location %s: %w", id, errNotFound)
	}
	return out, nil
}

// CreateLocation adopts the stored row when the string is already interned.
func (r *locationRepo) CreateLocation(ctx context.Context, l *location.Location) error {
	return r.s.write(ctx, func(st *state) error {
		if existing := first(st.locations, func(o *location.Location) bool {
			return o.LocationString == l.LocationString
		}, cloneLocation); existing != nil {
			l.ID = existing.ID
			return nil
		}
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		st.locations[l.ID] = cloneLocation(l)
		return nil
	})
}

func (r *locationRepo) Save(ctx context.Context, lv *location.LocationVisit) error {
	return r.s.write(ctx, func(st *state) error {
		st.locationVisits[lv.ID] = lv.Clone()
		return nil
	})
}

func (r *locationRepo) SaveAudit(ctx context.Context, a *location.LocationVisitAudit) error {
	return r.s.write(ctx, func(st *state) error {
		st.lvAudits = append(st.lvAudits, a)
		return nil
	})
}

func (r *locationRepo) Delete(ctx context.Context, lv *location.LocationVisit) error {
	return r.s.write(ctx, func(st *state) error {
		delete(st.locationVisits, lv.ID)
		return nil
	})
}

func byAdmission(a, b *location.LocationVisit) bool {
	if !a.AdmissionTime.Equal(b.AdmissionTime) {
		return a.AdmissionTime.Before(b.AdmissionTime)
	}
	return a.ValidFrom.Before(b.ValidFrom)
}

func (r *locationRepo) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*location.LocationVisit, error) {
	var out []*location.LocationVisit
	r.s.read(ctx, func(st *state) {
		out = collect(st.locationVisits, func(lv *location.LocationVisit) bool { return lv.VisitID == visitID },
			(*location.LocationVisit).Clone, byAdmission)
	})
	return out, nil
}

func (r *locationRepo) ListOpenAtLocation(ctx context.Context, locationID uuid.UUID) ([]*location.LocationVisit, error) {
	var out []*location.LocationVisit
	r.s.read(ctx, func(st *state) {
		out = collect(st.locationVisits, func(lv *location.LocationVisit) bool {
			return lv.LocationID == locationID && lv.IsOpen()
		}, (*location.LocationVisit).Clone, byAdmission)
	})
	return out, nil
}
