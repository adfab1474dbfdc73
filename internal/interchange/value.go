package interchange

import (
	"bytes"
	"encoding/json"
)

// State is the provenance of an optional field carried by an event.
type State uint8

const (
	// StateUnknown means the event has no opinion about the field.
	StateUnknown State = iota
	// StatePresent means the event asserts a value.
	StatePresent
	// StateDelete means the event asserts the field should be cleared.
	StateDelete
)

func (s State) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Value is a three-state optional field. The zero Value is unknown.
//
// On the wire an absent field is unknown, an explicit null is a delete and
// anything else is a present value. Fields of this type should be tagged
// with omitzero so unknown values stay absent when re-encoded.
type Value[T any] struct {
	state State
	value T
}

// Unknown returns a value that carries no opinion.
func Unknown[T any]() Value[T] { return Value[T]{} }

// Present returns a value asserting v.
func Present[T any](v T) Value[T] { return Value[T]{state: StatePresent, value: v} }

// Delete returns a value asserting the field should be cleared.
func Delete[T any]() Value[T] { return Value[T]{state: StateDelete} }

// FromPtr maps nil to Delete and anything else to Present.
func FromPtr[T any](p *T) Value[T] {
	if p == nil {
		return Delete[T]()
	}
	return Present(*p)
}

func (v Value[T]) State() State    { return v.state }
func (v Value[T]) IsUnknown() bool { return v.state == StateUnknown }
func (v Value[T]) IsPresent() bool { return v.state == StatePresent }
func (v Value[T]) IsDelete() bool  { return v.state == StateDelete }

// IsZero reports whether the value is unknown. It lets omitzero drop it.
func (v Value[T]) IsZero() bool { return v.state == StateUnknown }

// Get returns the asserted value and whether one is present.
func (v Value[T]) Get() (T, bool) {
	return v.value, v.state == StatePresent
}

// Ptr returns a pointer to a copy of the present value, or nil.
func (v Value[T]) Ptr() *T {
	if v.state != StatePresent {
		return nil
	}
	out := v.value
	return &out
}

// OrElse returns the present value or fallback.
func (v Value[T]) OrElse(fallback T) T {
	if v.state == StatePresent {
		return v.value
	}
	return fallback
}

func (v Value[T]) MarshalJSON() ([]byte, error) {
	if v.state != StatePresent {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}

func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Delete[T]()
		return nil
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*v = Present(out)
	return nil
}
