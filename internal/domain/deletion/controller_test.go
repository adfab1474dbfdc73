package deletion

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/trust"
	"github.com/ehr/adtcore/internal/domain/visit"
	"github.com/ehr/adtcore/internal/interchange"
	"github.com/ehr/adtcore/internal/platform/store/memory"
)

var (
	t0      = time.Date(2022, 3, 1, 9, 0, 0, 0, time.UTC)
	t1      = t0.Add(time.Hour)
	deleted = t0.Add(48 * time.Hour)
	saved   = t0.Add(72 * time.Hour)
)

type fixture struct {
	store     *memory.Store
	visits    *visit.Controller
	locations *location.Controller
	clinical  *clinical.Controller
	deletion  *Controller
	patient   *patient.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	cache, err := location.NewCache(store.Locations(), 16)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	f := &fixture{
		store:     store,
		visits:    visit.NewController(store.Visits(), trust.Default(), logger),
		locations: location.NewController(store.Locations(), cache, trust.Default(), logger),
		clinical:  clinical.NewController(store.Clinical(), logger),
	}
	f.deletion = NewController(f.visits, f.locations, f.clinical, logger)

	f.patient, err = patient.NewService(store.Patients(), logger).GetOrCreate(context.Background(), "40800000", "", "EPIC", saved)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func header(encounter string, at time.Time) interchange.Header {
	return interchange.Header{
		SourceSystem: "EPIC", Mrn: "40800000", VisitNumber: encounter,
		EventOccurredAt: &at, RecordedAt: at,
	}
}

// admitWithDependents admits encounter to a bed and files one lab order with
// two results, one consult and one form with an answer against it.
func (f *fixture) admitWithDependents(t *testing.T, encounter string) *visit.Visit {
	t.Helper()
	ctx := context.Background()
	admit := &interchange.AdmitPatient{
		Header: header(encounter, t0),
		AdtFields: interchange.AdtFields{
			FullLocation:  interchange.Present("T42E^T42E BY03^BY03-17"),
			AdmissionTime: interchange.Present(t0),
			PatientClass:  interchange.Present("INPATIENT"),
		},
	}
	v, err := f.visits.UpdateOrCreate(ctx, admit, saved, f.patient)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.locations.ProcessVisitLocation(ctx, v, admit, saved); err != nil {
		t.Fatal(err)
	}

	order := &interchange.LabOrder{
		Header:      header(encounter, t1),
		OrderNumber: "L-" + encounter,
		Results: []interchange.LabResult{
			{TestCode: "NA", Value: interchange.Present("140"), ResultTime: t1},
			{TestCode: "K", Value: interchange.Present("4.1"), ResultTime: t1},
		},
	}
	if err := f.clinical.RecordLabOrder(ctx, v, order, saved); err != nil {
		t.Fatal(err)
	}
	consult := &interchange.ConsultRequest{Header: header(encounter, t1), ConsultID: "C-" + encounter, ConsultType: "CARDIO", RequestedAt: t1}
	if err := f.clinical.RecordConsult(ctx, v, consult, saved); err != nil {
		t.Fatal(err)
	}
	form := &interchange.PatientForm{
		Header: header(encounter, t1), FormID: "F-" + encounter, FormName: "Falls", FiledAt: t1,
		Answers: []interchange.FormAnswer{{QuestionID: "Q1", Value: interchange.Present("yes")}},
	}
	if err := f.clinical.RecordForm(ctx, f.patient, v, form, saved); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestDeleteVisitsAndDependents(t *testing.T) {
	f := newFixture(t)
	a := f.admitWithDependents(t, "111111111111")
	b := f.admitWithDependents(t, "222222222222")

	counts, err := f.deletion.DeleteVisitsAndDependents(context.Background(), []*visit.Visit{a, b}, deleted, saved)
	if err != nil {
		t.Fatalf("DeleteVisitsAndDependents() error: %v", err)
	}
	want := Counts{Visits: 2, LocationVisits: 2, LabOrders: 2, LabResults: 4, Consults: 2, Forms: 2, FormAnswers: 2}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}

	snap := f.store.ExportState()
	if len(snap.Visits) != 0 || len(snap.LocationVisits) != 0 || len(snap.LabOrders) != 0 ||
		len(snap.LabResults) != 0 || len(snap.Consults) != 0 || len(snap.Forms) != 0 || len(snap.FormAnswers) != 0 {
		t.Errorf("expected every live row to be gone, got %+v", snap)
	}
	if len(snap.LabResultAudits) != 4 || len(snap.ConsultAudits) != 2 || len(snap.FormAnswerAudits) != 2 {
		t.Errorf("expected each deleted row to be audited, got %d results, %d consults, %d answers",
			len(snap.LabResultAudits), len(snap.ConsultAudits), len(snap.FormAnswerAudits))
	}
	for _, audit := range snap.LabResultAudits {
		if !audit.ValidUntil.Equal(deleted) || !audit.StoredUntil.Equal(saved) {
			t.Errorf("lab result audit has until times %v/%v, want %v/%v",
				audit.ValidUntil, audit.StoredUntil, deleted, saved)
		}
	}
	if len(snap.Patients) != 1 {
		t.Errorf("expected the patient to be kept, got %d patients", len(snap.Patients))
	}
}

func TestDeleteFormsForPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := &interchange.PatientForm{
		Header: header("", t1), FormID: "F-patient", FormName: "Consent", FiledAt: t1,
		Answers: []interchange.FormAnswer{
			{QuestionID: "Q1", Value: interchange.Present("agreed")},
			{QuestionID: "Q2", Value: interchange.Present("witnessed")},
		},
	}
	if err := f.clinical.RecordForm(ctx, f.patient, nil, form, saved); err != nil {
		t.Fatal(err)
	}
	f.admitWithDependents(t, "111111111111")

	counts, err := f.deletion.DeleteFormsForPatient(ctx, f.patient, deleted, saved)
	if err != nil {
		t.Fatalf("DeleteFormsForPatient() error: %v", err)
	}
	if counts.Forms != 1 || counts.FormAnswers != 2 {
		t.Errorf("expected the one visitless form with two answers, got %+v", counts)
	}
	if snap := f.store.ExportState(); len(snap.Forms) != 1 {
		t.Errorf("expected the visit's form to survive, got %d forms", len(snap.Forms))
	}
}

func TestCounts_Add(t *testing.T) {
	c := Counts{Visits: 1, LabResults: 2}
	c.Add(Counts{Visits: 2, Forms: 1, LabResults: 3})
	if c != (Counts{Visits: 3, LabResults: 5, Forms: 1}) {
		t.Errorf("unexpected sum %+v", c)
	}
}
