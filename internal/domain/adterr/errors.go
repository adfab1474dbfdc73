// Package adterr holds the typed failures raised while reconciling an event.
// None of them describe infrastructure problems; those are returned wrapped
// as they come from the store.
package adterr

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageIgnored matches events that are skipped on purpose.
	ErrMessageIgnored = errors.New("message ignored")
	// ErrRequiredDataMissing matches events that are ambiguous against current state.
	ErrRequiredDataMissing = errors.New("required data missing")
	// ErrIncompatibleDatabaseState matches events that would break a stored invariant.
	ErrIncompatibleDatabaseState = errors.New("incompatible database state")
)

// MessageIgnoredError marks an event that lacks an identifying field or asks
// for an update the core does not apply. It is acknowledged, not retried.
type MessageIgnoredError struct {
	Msg string
}

func (e *MessageIgnoredError) Error() string { return "message ignored: " + e.Msg }
func (e *MessageIgnoredError) Is(target error) bool {
	return target == ErrMessageIgnored
}

// RequiredDataMissingError marks an event that cannot be applied without
// guessing, e.g. a cancellation with several candidate rows.
type RequiredDataMissingError struct {
	Msg string
}

func (e *RequiredDataMissingError) Error() string { return "required data missing: " + e.Msg }
func (e *RequiredDataMissingError) Is(target error) bool {
	return target == ErrRequiredDataMissing
}

// IncompatibleDatabaseStateError marks a stored-state invariant violation.
// It is fatal for the event and never repaired silently.
type IncompatibleDatabaseStateError struct {
	Msg string
}

func (e *IncompatibleDatabaseStateError) Error() string {
	return "incompatible database state: " + e.Msg
}
func (e *IncompatibleDatabaseStateError) Is(target error) bool {
	return target == ErrIncompatibleDatabaseState
}

func MessageIgnored(format string, args ...any) error {
	return &MessageIgnoredError{Msg: fmt.Sprintf(format, args...)}
}

func RequiredDataMissing(format string, args ...any) error {
	return &RequiredDataMissingError{Msg: fmt.Sprintf(format, args...)}
}

func IncompatibleDatabaseState(format string, args ...any) error {
	return &IncompatibleDatabaseStateError{Msg: fmt.Sprintf(format, args...)}
}

// Class is a coarse outcome label used for logs and metrics.
type Class string

const (
	ClassOK           Class = "ok"
	ClassIgnored      Class = "ignored"
	ClassMissingData  Class = "required_data_missing"
	ClassIncompatible Class = "incompatible_state"
	ClassFailed       Class = "failed"
)

// Classify maps an error returned from processing to its Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOK
	case errors.Is(err, ErrMessageIgnored):
		return ClassIgnored
	case errors.Is(err, ErrRequiredDataMissing):
		return ClassMissingData
	case errors.Is(err, ErrIncompatibleDatabaseState):
		return ClassIncompatible
	default:
		return ClassFailed
	}
}

// Retryable reports whether redelivering the same event could succeed. Only
// infrastructure failures qualify; every typed failure is deterministic.
func Retryable(err error) bool {
	return Classify(err) == ClassFailed
}
