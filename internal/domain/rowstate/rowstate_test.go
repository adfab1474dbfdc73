package rowstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ehr/adtcore/internal/interchange"
)

type bed struct {
	ID         int
	Ward       string
	Note       *string
	Since      *time.Time
	ValidFrom  time.Time
	StoredFrom time.Time
}

type bedAudit struct {
	bed
	ValidUntil  time.Time
	StoredUntil time.Time
}

func (b *bed) Clone() *bed {
	out := *b
	if b.Note != nil {
		n := *b.Note
		out.Note = &n
	}
	if b.Since != nil {
		s := *b.Since
		out.Since = &s
	}
	return &out
}

func (b *bed) AuditRecord(validUntil, storedUntil time.Time) *bedAudit {
	return &bedAudit{bed: *b.Clone(), ValidUntil: validUntil, StoredUntil: storedUntil}
}

func (b *bed) SetValidFrom(t time.Time)  { b.ValidFrom = t }
func (b *bed) SetStoredFrom(t time.Time) { b.StoredFrom = t }

type bedStore struct {
	saved   []*bed
	audits  []*bedAudit
	deleted []int
	failOn  string
}

func (s *bedStore) Save(_ context.Context, b *bed) error {
	if s.failOn == "save" {
		return errors.New("boom")
	}
	s.saved = append(s.saved, b.Clone())
	return nil
}

func (s *bedStore) SaveAudit(_ context.Context, a *bedAudit) error {
	if s.failOn == "audit" {
		return errors.New("boom")
	}
	s.audits = append(s.audits, a)
	return nil
}

func (s *bedStore) Delete(_ context.Context, b *bed) error {
	s.deleted = append(s.deleted, b.ID)
	return nil
}

var (
	t0 = time.Date(2022, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func strPtr(s string) *string { return &s }

func TestSaveOrAudit_CreatedSavesWithoutAudit(t *testing.T) {
	store := &bedStore{}
	rs := New[*bed, *bedAudit](&bed{ID: 1, Ward: "T42"}, t1, t2, true)
	AssignIfDifferent(rs, &rs.Entity().Ward, "T43")

	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatalf("SaveOrAudit() error: %v", err)
	}
	if len(store.saved) != 1 || len(store.audits) != 0 {
		t.Fatalf("expected 1 save and 0 audits, got %d and %d", len(store.saved), len(store.audits))
	}
	if store.saved[0].Ward != "T43" {
		t.Errorf("unexpected ward %q", store.saved[0].Ward)
	}
}

func TestSaveOrAudit_UpdatedAuditsSnapshot(t *testing.T) {
	store := &bedStore{}
	live := &bed{ID: 1, Ward: "T42", ValidFrom: t0, StoredFrom: t0}
	rs := New[*bed, *bedAudit](live, t1, t2, false)

	if !AssignIfDifferent(rs, &live.Ward, "T43") {
		t.Fatal("expected change")
	}
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatalf("SaveOrAudit() error: %v", err)
	}

	if len(store.audits) != 1 {
		t.Fatalf("expected 1 audit, got %d", len(store.audits))
	}
	audit := store.audits[0]
	if audit.Ward != "T42" {
		t.Errorf("audit should hold the pre-change value, got %q", audit.Ward)
	}
	if !audit.ValidUntil.Equal(t1) || !audit.StoredUntil.Equal(t2) {
		t.Errorf("unexpected audit bounds %v / %v", audit.ValidUntil, audit.StoredUntil)
	}
	if !audit.ValidFrom.Equal(t0) {
		t.Errorf("audit should keep the old valid-from, got %v", audit.ValidFrom)
	}
	if !live.ValidFrom.Equal(t1) || !live.StoredFrom.Equal(t2) {
		t.Errorf("live row should be restamped, got %v / %v", live.ValidFrom, live.StoredFrom)
	}
}

func TestSaveOrAudit_UnchangedDoesNothing(t *testing.T) {
	store := &bedStore{}
	live := &bed{ID: 1, Ward: "T42", Note: strPtr("window")}
	rs := New[*bed, *bedAudit](live, t1, t2, false)

	AssignIfDifferent(rs, &live.Ward, "T42")
	AssignPtrIfDifferent(rs, &live.Note, strPtr("window"))
	AssignFromValue(rs, &live.Note, interchange.Unknown[string]())

	if rs.Updated() {
		t.Fatal("re-asserting values must not mark the row updated")
	}
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatalf("SaveOrAudit() error: %v", err)
	}
	if len(store.saved)+len(store.audits) != 0 {
		t.Errorf("expected no writes, got %d saves and %d audits", len(store.saved), len(store.audits))
	}
}

func TestSaveOrAudit_IsResettable(t *testing.T) {
	store := &bedStore{}
	live := &bed{ID: 1, Ward: "A"}
	rs := New[*bed, *bedAudit](live, t1, t2, false)

	AssignIfDifferent(rs, &live.Ward, "B")
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if len(store.audits) != 1 || len(store.saved) != 1 {
		t.Errorf("second call should be a no-op, got %d audits and %d saves", len(store.audits), len(store.saved))
	}

	AssignIfDifferent(rs, &live.Ward, "C")
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if got := store.audits[1].Ward; got != "B" {
		t.Errorf("second audit should snapshot the saved state, got %q", got)
	}
}

func TestSaveOrAudit_PropagatesErrors(t *testing.T) {
	for _, failOn := range []string{"save", "audit"} {
		store := &bedStore{failOn: failOn}
		live := &bed{ID: 1, Ward: "A"}
		rs := New[*bed, *bedAudit](live, t1, t2, false)
		AssignIfDifferent(rs, &live.Ward, "B")
		if err := rs.SaveOrAudit(context.Background(), store); err == nil {
			t.Errorf("expected error when %s fails", failOn)
		}
	}
}

func TestAssignFromValue(t *testing.T) {
	tests := []struct {
		name        string
		current     *string
		incoming    interchange.Value[string]
		want        *string
		wantChanged bool
	}{
		{"unknown keeps set value", strPtr("x"), interchange.Unknown[string](), strPtr("x"), false},
		{"unknown keeps null", nil, interchange.Unknown[string](), nil, false},
		{"delete clears", strPtr("x"), interchange.Delete[string](), nil, true},
		{"delete of null is no-op", nil, interchange.Delete[string](), nil, false},
		{"present assigns", nil, interchange.Present("y"), strPtr("y"), true},
		{"present replaces", strPtr("x"), interchange.Present("y"), strPtr("y"), true},
		{"present same value", strPtr("y"), interchange.Present("y"), strPtr("y"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := &bed{Note: tt.current}
			rs := New[*bed, *bedAudit](live, t1, t2, false)
			changed := AssignFromValue(rs, &live.Note, tt.incoming)
			if changed != tt.wantChanged || rs.Updated() != tt.wantChanged {
				t.Errorf("changed = %v, updated = %v, want %v", changed, rs.Updated(), tt.wantChanged)
			}
			if !equalPtr(live.Note, tt.want) {
				t.Errorf("field = %v, want %v", live.Note, tt.want)
			}
		})
	}
}

func TestAssignPtrIfDifferent_ComparesTimesByInstant(t *testing.T) {
	since := t0
	live := &bed{Since: &since}
	rs := New[*bed, *bedAudit](live, t1, t2, false)

	sameInstant := t0.In(time.FixedZone("BST", 3600))
	if AssignPtrIfDifferent(rs, &live.Since, &sameInstant) {
		t.Error("equal instants in different zones must not count as a change")
	}
}

func TestRemoveIfExists_MovesValidFrom(t *testing.T) {
	store := &bedStore{}
	live := &bed{ID: 1, Note: strPtr("x"), ValidFrom: t0}
	rs := New[*bed, *bedAudit](live, t2, t2, false)

	if !RemoveIfExists(rs, &live.Note, t1) {
		t.Fatal("expected removal")
	}
	if RemoveIfExists(rs, &live.Note, t2) {
		t.Error("second removal should be a no-op")
	}
	if !rs.ValidFrom().Equal(t1) {
		t.Errorf("valid-from should move to the removal time, got %v", rs.ValidFrom())
	}
	if err := rs.SaveOrAudit(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if !store.audits[0].ValidUntil.Equal(t1) || !live.ValidFrom.Equal(t1) {
		t.Errorf("unexpected times: audit until %v, live from %v", store.audits[0].ValidUntil, live.ValidFrom)
	}
}

func TestDelete(t *testing.T) {
	store := &bedStore{}
	live := &bed{ID: 7, Ward: "A"}
	rs := New[*bed, *bedAudit](live, t1, t2, false)
	AssignIfDifferent(rs, &live.Ward, "B")

	if err := rs.Delete(context.Background(), store, t1, t2); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 7 {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
	if store.audits[0].Ward != "A" {
		t.Errorf("deletion audit should hold the stored values, got %q", store.audits[0].Ward)
	}

	fresh := New[*bed, *bedAudit](&bed{ID: 8}, t1, t2, true)
	if err := fresh.Delete(context.Background(), store, t1, t2); err != nil {
		t.Fatal(err)
	}
	if len(store.deleted) != 1 || len(store.audits) != 1 {
		t.Error("deleting an unsaved row should not touch the store")
	}
}

func TestFuncs(t *testing.T) {
	store := &bedStore{}
	f := Funcs[*bed, *bedAudit]{SaveFn: store.Save, SaveAuditFn: store.SaveAudit, DeleteFn: store.Delete}

	if err := DeleteAudited[*bed, *bedAudit](context.Background(), f, &bed{ID: 3}, t1, t2); err != nil {
		t.Fatal(err)
	}
	if len(store.audits) != 1 || len(store.deleted) != 1 {
		t.Errorf("expected one audit and one delete, got %d and %d", len(store.audits), len(store.deleted))
	}
}
