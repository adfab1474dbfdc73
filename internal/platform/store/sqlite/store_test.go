package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
)

func TestStore_PersistsCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "adt.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mrn := "40800000"
	p := &patient.Patient{ID: uuid.New(), Mrn: &mrn}
	v := &visit.Visit{ID: uuid.New(), EncounterNumber: "E1", PatientID: p.ID, ValidFrom: time.Now().UTC()}

	err = s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.Patients().Create(ctx, p); err != nil {
			return err
		}
		return s.Visits().Save(ctx, v)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	err = s.RunInTx(ctx, func(ctx context.Context) error {
		other := "999"
		if err := s.Patients().Create(ctx, &patient.Patient{Mrn: &other}); err != nil {
			return err
		}
		return errors.New("rolled back")
	})
	if err == nil {
		t.Fatal("expected the rollback error")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Visits().FindByEncounter(ctx, "E1")
	if err != nil || got == nil {
		t.Fatalf("expected the visit after reopening, got %v, %v", got, err)
	}
	if got.PatientID != p.ID {
		t.Errorf("expected patient %s, got %s", p.ID, got.PatientID)
	}
	if p, _ := reopened.Patients().FindByMrn(ctx, "999"); p != nil {
		t.Error("expected the rolled back patient not to be persisted")
	}
}

func TestStore_EmptyFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, _ := s.Visits().FindByEncounter(context.Background(), "E1"); v != nil {
		t.Error("expected an empty store")
	}
	if s.Path() == "" {
		t.Error("expected a path")
	}
}
