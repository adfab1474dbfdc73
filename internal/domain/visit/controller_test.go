package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/adterr"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/interchange"
)

// -- Mock Repository --

type mockRepo struct {
	visits map[uuid.UUID]*Visit
	audits []*VisitAudit
}

func newMockRepo() *mockRepo {
	return &mockRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (m *mockRepo) Save(_ context.Context, v *Visit) error {
	m.visits[v.ID] = v.Clone()
	return nil
}

func (m *mockRepo) SaveAudit(_ context.Context, a *VisitAudit) error {
	m.audits = append(m.audits, a)
	return nil
}

func (m *mockRepo) Delete(_ context.Context, v *Visit) error {
	delete(m.visits, v.ID)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return v.Clone(), nil
}

func (m *mockRepo) FindByEncounter(_ context.Context, encounter string) (*Visit, error) {
	for _, v := range m.visits {
		if v.EncounterNumber == encounter {
			return v.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Visit, error) {
	var out []*Visit
	for _, v := range m.visits {
		if v.PatientID == patientID {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (m *mockRepo) ListAudit(_ context.Context, visitID uuid.UUID, _, _ int) ([]*VisitAudit, int, error) {
	var out []*VisitAudit
	for _, a := range m.audits {
		if a.VisitID == visitID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

// -- Helpers --

var (
	t0    = time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC)
	t1    = t0.Add(time.Hour)
	t2    = t0.Add(2 * time.Hour)
	saved = time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC)
)

func newTestController() (*Controller, *mockRepo) {
	repo := newMockRepo()
	return NewController(repo, trust.Default(), zerolog.Nop()), repo
}

func testPatient() *patient.Patient {
	mrn := "40800000"
	return &patient.Patient{ID: uuid.New(), Mrn: &mrn, SourceSystem: "EPIC"}
}

func header(source, visit string, at time.Time) interchange.Header {
	return interchange.Header{
		SourceSystem:    source,
		Mrn:             "40800000",
		VisitNumber:     visit,
		EventOccurredAt: &at,
		RecordedAt:      at,
	}
}

func admitAt(source string, at time.Time) *interchange.AdmitPatient {
	m := &interchange.AdmitPatient{Header: header(source, "123412341234", at)}
	m.AdmissionTime = interchange.Present(at)
	m.PatientClass = interchange.Present("INPATIENT")
	m.FullLocation = interchange.Present("T42^BED 1")
	return m
}

func onlyVisit(t *testing.T, repo *mockRepo) *Visit {
	t.Helper()
	if len(repo.visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(repo.visits))
	}
	for _, v := range repo.visits {
		return v
	}
	return nil
}

// -- Tests --

func TestUpdateOrCreate_AdmitCreatesVisit(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()

	v, err := c.UpdateOrCreate(context.Background(), admitAt("EPIC", t0), saved, p)
	if err != nil {
		t.Fatalf("UpdateOrCreate() error: %v", err)
	}
	if v == nil {
		t.Fatal("expected a visit")
	}
	stored := onlyVisit(t, repo)
	if stored.PatientID != p.ID {
		t.Error("expected visit to belong to the patient")
	}
	if stored.AdmissionTime == nil || !stored.AdmissionTime.Equal(t0) {
		t.Errorf("expected admission %v, got %v", t0, stored.AdmissionTime)
	}
	if stored.PatientClass == nil || *stored.PatientClass != "INPATIENT" {
		t.Errorf("unexpected patient class %v", stored.PatientClass)
	}
	if !stored.ValidFrom.Equal(t0) || !stored.StoredFrom.Equal(saved) {
		t.Errorf("unexpected temporal stamps %v / %v", stored.ValidFrom, stored.StoredFrom)
	}
	if len(repo.audits) != 0 {
		t.Errorf("expected no audit for a created visit, got %d", len(repo.audits))
	}
}

func TestUpdateOrCreate_IdempotentAdmit(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t0), saved, p); err != nil {
			t.Fatal(err)
		}
	}
	onlyVisit(t, repo)
	if len(repo.audits) != 0 {
		t.Errorf("expected no audit rows for repeated admits, got %d", len(repo.audits))
	}
}

func TestUpdateOrCreate_RegisterSetsAdmissionAndPresentation(t *testing.T) {
	c, repo := newTestController()
	reg := &interchange.RegisterPatient{Header: header("EPIC", "123412341234", t1)}
	reg.AdmissionTime = interchange.Present(t0)
	reg.PresentationTime = interchange.Present(t1)

	if _, err := c.UpdateOrCreate(context.Background(), reg, saved, testPatient()); err != nil {
		t.Fatalf("UpdateOrCreate() error: %v", err)
	}
	stored := onlyVisit(t, repo)
	if stored.AdmissionTime == nil || !stored.AdmissionTime.Equal(t0) {
		t.Errorf("expected admission %v, got %v", t0, stored.AdmissionTime)
	}
	if stored.PresentationTime == nil || !stored.PresentationTime.Equal(t1) {
		t.Errorf("expected presentation %v, got %v", t1, stored.PresentationTime)
	}
}

func TestUpdateOrCreate_NoVisitNumber(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	admit := admitAt("EPIC", t0)
	admit.VisitNumber = ""
	if _, err := c.UpdateOrCreate(ctx, admit, saved, p); !errors.Is(err, adterr.ErrMessageIgnored) {
		t.Errorf("expected message ignored, got %v", err)
	}

	implied := &interchange.ImpliedAdt{Header: header("EPIC", "", t0)}
	v, err := c.UpdateOrCreate(ctx, implied, saved, p)
	if err != nil || v != nil {
		t.Errorf("expected nil visit and no error, got %v, %v", v, err)
	}

	info := &interchange.UpdatePatientInfo{Header: header("EPIC", "123412341234", t0)}
	v, err = c.UpdateOrCreate(ctx, info, saved, p)
	if err != nil || v != nil {
		t.Errorf("expected nil visit and no error, got %v, %v", v, err)
	}
	if len(repo.visits) != 0 {
		t.Errorf("expected no visits, got %d", len(repo.visits))
	}
}

func TestUpdateOrCreate_TrustOrdering(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		at        time.Time
		wantClass string
		wantAudit int
	}{
		{"newer trusted overwrites", "EPIC", t2, "OUTPATIENT", 1},
		{"same time trusted overwrites", "EPIC", t1, "OUTPATIENT", 1},
		{"older trusted is skipped", "EPIC", t0, "INPATIENT", 0},
		{"newer untrusted is skipped", "CARECAST", t2, "INPATIENT", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, repo := newTestController()
			p := testPatient()
			ctx := context.Background()

			if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t1), saved, p); err != nil {
				t.Fatal(err)
			}
			transfer := &interchange.TransferPatient{Header: header(tt.source, "123412341234", tt.at)}
			transfer.PatientClass = interchange.Present("OUTPATIENT")
			if _, err := c.UpdateOrCreate(ctx, transfer, saved, p); err != nil {
				t.Fatal(err)
			}

			stored := onlyVisit(t, repo)
			if *stored.PatientClass != tt.wantClass {
				t.Errorf("expected class %s, got %s", tt.wantClass, *stored.PatientClass)
			}
			if len(repo.audits) != tt.wantAudit {
				t.Errorf("expected %d audit rows, got %d", tt.wantAudit, len(repo.audits))
			}
		})
	}
}

func TestUpdateOrCreate_TrustedReplacesUntrusted(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	first := &interchange.TransferPatient{Header: header("CARECAST", "123412341234", t2)}
	first.PatientClass = interchange.Present("EMERGENCY")
	if _, err := c.UpdateOrCreate(ctx, first, saved, p); err != nil {
		t.Fatal(err)
	}
	// Older, but the stored row came from an untrusted source.
	if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t0), saved, p); err != nil {
		t.Fatal(err)
	}
	stored := onlyVisit(t, repo)
	if *stored.PatientClass != "INPATIENT" || stored.SourceSystem != "EPIC" {
		t.Errorf("expected trusted overwrite, got %s from %s", *stored.PatientClass, stored.SourceSystem)
	}
	if len(repo.audits) != 1 {
		t.Errorf("expected 1 audit row, got %d", len(repo.audits))
	}
}

func TestUpdateOrCreate_FillsAdmissionFromOlderTrustedEvent(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	transfer := &interchange.TransferPatient{Header: header("EPIC", "123412341234", t2)}
	if _, err := c.UpdateOrCreate(ctx, transfer, saved, p); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t0), saved, p); err != nil {
		t.Fatal(err)
	}
	stored := onlyVisit(t, repo)
	if stored.AdmissionTime == nil || !stored.AdmissionTime.Equal(t0) {
		t.Errorf("expected admission time to be filled, got %v", stored.AdmissionTime)
	}
	if stored.PatientClass != nil {
		t.Errorf("expected patient class untouched by the older event, got %v", *stored.PatientClass)
	}
}

func TestUpdateOrCreate_DischargeAndCancel(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t0), saved, p); err != nil {
		t.Fatal(err)
	}

	disposition, destination := "Home", "Usual place of residence"
	discharge := &interchange.DischargePatient{
		Header:               header("EPIC", "123412341234", t1),
		DischargeTime:        &t1,
		DischargeDisposition: &disposition,
		DischargeLocation:    &destination,
	}
	if _, err := c.UpdateOrCreate(ctx, discharge, saved, p); err != nil {
		t.Fatal(err)
	}
	stored := onlyVisit(t, repo)
	if !stored.IsDischarged() || *stored.DischargeDisposition != "Home" {
		t.Fatalf("expected discharged visit, got %+v", stored)
	}

	cancel := &interchange.CancelDischargePatient{Header: header("EPIC", "123412341234", t2), CancelledAt: &t2}
	if _, err := c.UpdateOrCreate(ctx, cancel, saved, p); err != nil {
		t.Fatal(err)
	}
	stored = onlyVisit(t, repo)
	if stored.IsDischarged() || stored.DischargeDisposition != nil || stored.DischargeDestination != nil {
		t.Errorf("expected discharge facts removed, got %+v", stored)
	}
	if !stored.ValidFrom.Equal(t2) {
		t.Errorf("expected valid from to move to the cancellation, got %v", stored.ValidFrom)
	}
	if len(repo.audits) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(repo.audits))
	}
	last := repo.audits[1]
	if last.Visit.DischargeTime == nil || !last.ValidUntil.Equal(t2) {
		t.Errorf("expected audit of the discharged row valid until %v, got %+v", t2, last)
	}
}

func TestUpdateOrCreate_CancelAdmit(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	if _, err := c.UpdateOrCreate(ctx, admitAt("EPIC", t0), saved, p); err != nil {
		t.Fatal(err)
	}
	cancel := &interchange.CancelAdmitPatient{Header: header("EPIC", "123412341234", t1), CancelledAt: &t1}
	if _, err := c.UpdateOrCreate(ctx, cancel, saved, p); err != nil {
		t.Fatal(err)
	}
	if stored := onlyVisit(t, repo); stored.AdmissionTime != nil {
		t.Errorf("expected admission removed, got %v", stored.AdmissionTime)
	}
	if len(repo.audits) != 1 {
		t.Errorf("expected 1 audit row, got %d", len(repo.audits))
	}
}

func TestGetOrCreateMinimal(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	first, err := c.GetOrCreateMinimal(ctx, "V1", p, "EPIC", t0, saved)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetOrCreateMinimal(ctx, "V1", p, "EPIC", t1, saved)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || len(repo.visits) != 1 {
		t.Error("expected one minimal visit")
	}
	if _, err := c.GetOrCreateMinimal(ctx, "", p, "EPIC", t0, saved); !errors.Is(err, adterr.ErrMessageIgnored) {
		t.Errorf("expected message ignored, got %v", err)
	}
}

func TestMoveVisitInformation(t *testing.T) {
	ctx := context.Background()

	t.Run("no change is incompatible", func(t *testing.T) {
		c, _ := newTestController()
		p := testPatient()
		msg := &interchange.MoveVisitInformation{Header: header("EPIC", "V1", t1), PreviousVisitNumber: "V1"}
		if _, err := c.MoveVisitInformation(ctx, msg, saved, p, p); !errors.Is(err, adterr.ErrIncompatibleDatabaseState) {
			t.Errorf("expected incompatible state, got %v", err)
		}
	})

	t.Run("existing target is incompatible", func(t *testing.T) {
		c, _ := newTestController()
		p := testPatient()
		if _, err := c.GetOrCreateMinimal(ctx, "V2", p, "EPIC", t0, saved); err != nil {
			t.Fatal(err)
		}
		msg := &interchange.MoveVisitInformation{Header: header("EPIC", "V2", t1), PreviousVisitNumber: "V1"}
		if _, err := c.MoveVisitInformation(ctx, msg, saved, p, p); !errors.Is(err, adterr.ErrIncompatibleDatabaseState) {
			t.Errorf("expected incompatible state, got %v", err)
		}
	})

	t.Run("re-keys visit and patient", func(t *testing.T) {
		c, repo := newTestController()
		previous, current := testPatient(), testPatient()
		if _, err := c.GetOrCreateMinimal(ctx, "V1", previous, "EPIC", t0, saved); err != nil {
			t.Fatal(err)
		}
		msg := &interchange.MoveVisitInformation{Header: header("EPIC", "V9", t1), PreviousVisitNumber: "V1"}
		v, err := c.MoveVisitInformation(ctx, msg, saved, previous, current)
		if err != nil {
			t.Fatal(err)
		}
		if v.EncounterNumber != "V9" || v.PatientID != current.ID {
			t.Errorf("expected visit moved to V9 for the current patient, got %s/%s", v.EncounterNumber, v.PatientID)
		}
		if len(repo.visits) != 1 || len(repo.audits) != 1 {
			t.Errorf("expected 1 visit and 1 audit, got %d and %d", len(repo.visits), len(repo.audits))
		}
		if repo.audits[0].Visit.EncounterNumber != "V1" {
			t.Errorf("expected audit of the old key, got %s", repo.audits[0].Visit.EncounterNumber)
		}
	})
}

func TestOlderVisits(t *testing.T) {
	c, _ := newTestController()
	p := testPatient()
	ctx := context.Background()

	for i, at := range []time.Time{t0, t1, t2} {
		if _, err := c.GetOrCreateMinimal(ctx, string(rune('A'+i)), p, "EPIC", at, saved); err != nil {
			t.Fatal(err)
		}
	}
	older, err := c.OlderVisits(ctx, p, t1)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 {
		t.Errorf("expected 2 visits at or before %v, got %d", t1, len(older))
	}
}

func TestDelete(t *testing.T) {
	c, repo := newTestController()
	p := testPatient()
	ctx := context.Background()

	v, err := c.GetOrCreateMinimal(ctx, "V1", p, "EPIC", t0, saved)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, v, t1, saved); err != nil {
		t.Fatal(err)
	}
	if len(repo.visits) != 0 || len(repo.audits) != 1 {
		t.Errorf("expected visit deleted with one audit, got %d visits and %d audits", len(repo.visits), len(repo.audits))
	}
}
