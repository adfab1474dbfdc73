// Package memory is a transactional in-memory implementation of every
// repository. Transactions are serialised and work on a cloned state that
// replaces the committed state only when the unit of work succeeds.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/adtcore/internal/domain/clinical"
	"github.com/ehr/adtcore/internal/domain/location"
	"github.com/ehr/adtcore/internal/domain/patient"
	"github.com/ehr/adtcore/internal/domain/visit"
)

type contextKey struct{}

// state is one complete copy of the stored rows. Audit records are never
// modified after they are written, so clones share them.
type state struct {
	patients       map[uuid.UUID]*patient.Patient
	visits         map[uuid.UUID]*visit.Visit
	visitAudits    []*visit.VisitAudit
	locations      map[uuid.UUID]*location.Location
	locationVisits map[uuid.UUID]*location.LocationVisit
	lvAudits       []*location.LocationVisitAudit
	labOrders      map[uuid.UUID]*clinical.LabOrder
	labOrderAudits []*clinical.LabOrderAudit
	labResults     map[uuid.UUID]*clinical.LabResult
	labResultAudit []*clinical.LabResultAudit
	consults       map[uuid.UUID]*clinical.ConsultRequest
	consultAudits  []*clinical.ConsultRequestAudit
	forms          map[uuid.UUID]*clinical.Form
	formAudits     []*clinical.FormAudit
	answers        map[uuid.UUID]*clinical.FormAnswer
	answerAudits   []*clinical.FormAnswerAudit
}

func newState() *state {
	return &state{
		patients:       make(map[uuid.UUID]*patient.Patient),
		visits:         make(map[uuid.UUID]*visit.Visit),
		locations:      make(map[uuid.UUID]*location.Location),
		locationVisits: make(map[uuid.UUID]*location.LocationVisit),
		labOrders:      make(map[uuid.UUID]*clinical.LabOrder),
		labResults:     make(map[uuid.UUID]*clinical.LabResult),
		consults:       make(map[uuid.UUID]*clinical.ConsultRequest),
		forms:          make(map[uuid.UUID]*clinical.Form),
		answers:        make(map[uuid.UUID]*clinical.FormAnswer),
	}
}

func (s *state) clone() *state {
	return &state{
		patients:       cloneMap(s.patients, func(p *patient.Patient) *patient.Patient { c := *p; return &c }),
		visits:         cloneMap(s.visits, (*visit.Visit).Clone),
		visitAudits:    cloneSlice(s.visitAudits),
		locations:      cloneMap(s.locations, func(l *location.Location) *location.Location { c := *l; return &c }),
		locationVisits: cloneMap(s.locationVisits, (*location.LocationVisit).Clone),
		lvAudits:       cloneSlice(s.lvAudits),
		labOrders:      cloneMap(s.labOrders, (*clinical.LabOrder).Clone),
		labOrderAudits: cloneSlice(s.labOrderAudits),
		labResults:     cloneMap(s.labResults, (*clinical.LabResult).Clone),
		labResultAudit: cloneSlice(s.labResultAudit),
		consults:       cloneMap(s.consults, (*clinical.ConsultRequest).Clone),
		consultAudits:  cloneSlice(s.consultAudits),
		forms:          cloneMap(s.forms, (*clinical.Form).Clone),
		formAudits:     cloneSlice(s.formAudits),
		answers:        cloneMap(s.answers, (*clinical.FormAnswer).Clone),
		answerAudits:   cloneSlice(s.answerAudits),
	}
}

func cloneMap[V any](m map[uuid.UUID]V, clone func(V) V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	return append([]T(nil), s...)
}

// Store holds the committed state. Reads outside a transaction see the
// last committed state.
type Store struct {
	mu       sync.RWMutex
	state    *state
	onCommit []func(context.Context, Snapshot) error
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// OnCommit registers fn to receive the state of every committed transaction
// while the store is still locked. An error from fn is returned by RunInTx;
// the in-memory commit stands.
func (s *Store) OnCommit(fn func(context.Context, Snapshot) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// RunInTx runs fn against a private copy of the state and commits it when fn
// returns nil. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(contextKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(context.WithValue(ctx, contextKey{}, working)); err != nil {
		return err
	}
	s.state = working

	if len(s.onCommit) == 0 {
		return nil
	}
	snap := exportState(working)
	for _, hook := range s.onCommit {
		if err := hook(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// read runs fn against the transaction state in ctx, or the committed state.
func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if st, ok := ctx.Value(contextKey{}).(*state); ok {
		fn(st)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// write runs fn against the transaction state in ctx. Outside a
// transaction the committed state is modified directly.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(contextKey{}).(*state); ok {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Repositories returned below share the store's state.

func (s *Store) Patients() patient.Repository   { return &patientRepo{s} }
func (s *Store) Visits() visit.Repository       { return &visitRepo{s} }
func (s *Store) Locations() location.Repository { return &locationRepo{s} }
func (s *Store) Clinical() clinical.Repository  { return &clinicalRepo{s} }

// collect returns the rows of m matching keep, cloned and ordered by less.
func collect[V any](m map[uuid.UUID]V, keep func(V) bool, clone func(V) V, less func(a, b V) bool) []V {
	var out []V
	for _, v := range m {
		if keep(v) {
			out = append(out, clone(v))
		}
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

// first returns a clone of one row of m matching keep, or the zero value.
func first[V any](m map[uuid.UUID]V, keep func(V) bool, clone func(V) V) V {
	for _, v := range m {
		if keep(v) {
			return clone(v)
		}
	}
	var zero V
	return zero
}
