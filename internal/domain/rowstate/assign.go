package rowstate

import (
	"time"

	"github.com/ehr/adtcore/internal/interchange"
)

// NextIfDifferent returns the value a field should hold and whether it
// differs from current.
func NextIfDifferent[V comparable](current, incoming V) (V, bool) {
	if equal(current, incoming) {
		return current, false
	}
	return incoming, true
}

// NextPtrIfDifferent is NextIfDifferent for nullable fields. Pointers are
// compared by the values they point to.
func NextPtrIfDifferent[V comparable](current, incoming *V) (*V, bool) {
	if equalPtr(current, incoming) {
		return current, false
	}
	if incoming == nil {
		return nil, true
	}
	v := *incoming
	return &v, true
}

// NextFromValue applies a three-state value to a nullable field: unknown
// keeps the field, delete clears it, present assigns it when different.
func NextFromValue[V comparable](current *V, incoming interchange.Value[V]) (*V, bool) {
	switch incoming.State() {
	case interchange.StatePresent:
		return NextPtrIfDifferent(current, incoming.Ptr())
	case interchange.StateDelete:
		return NextRemoved(current)
	default:
		return current, false
	}
}

// NextRemoved clears a nullable field, reporting a change only if it was set.
func NextRemoved[V any](current *V) (*V, bool) {
	if current == nil {
		return nil, false
	}
	return nil, true
}

// AssignIfDifferent writes value into field when it differs.
func AssignIfDifferent[V comparable](t Tracker, field *V, value V) bool {
	next, changed := NextIfDifferent(*field, value)
	return commit(t, field, next, changed)
}

// AssignPtrIfDifferent writes value into a nullable field when it differs.
func AssignPtrIfDifferent[V comparable](t Tracker, field **V, value *V) bool {
	next, changed := NextPtrIfDifferent(*field, value)
	return commit(t, field, next, changed)
}

// AssignFromValue applies a three-state value to a nullable field.
func AssignFromValue[V comparable](t Tracker, field **V, value interchange.Value[V]) bool {
	next, changed := NextFromValue(*field, value)
	return commit(t, field, next, changed)
}

// RemoveIfExists clears a nullable field that is currently set. A removal
// takes effect at eventTime, which becomes the row's new valid-from.
func RemoveIfExists[V any](t Tracker, field **V, eventTime time.Time) bool {
	next, changed := NextRemoved(*field)
	if changed {
		t.moveValidFrom(eventTime)
	}
	return commit(t, field, next, changed)
}

func commit[V any](t Tracker, field *V, next V, changed bool) bool {
	if !changed {
		return false
	}
	*field = next
	t.markUpdated()
	return true
}

func equal[V comparable](a, b V) bool {
	if at, ok := any(a).(time.Time); ok {
		return at.Equal(any(b).(time.Time))
	}
	return a == b
}

func equalPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return equal(*a, *b)
}
