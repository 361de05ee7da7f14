// Package errs defines the error taxonomy shared by every repository.
//
// NotFound and Conflict are expected outcomes callers branch on with
// errors.Is; Unavailable wraps infrastructure failures from the store and
// propagates unchanged so the caller decides retry policy.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a referenced entity as absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation, a stale-version edit or a
	// duplicate membership.
	ErrConflict = errors.New("conflict")
)

// ValidationError reports malformed input caught before any store call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return "validation: " + e.Field + ": " + e.Msg
}

// Invalid builds a ValidationError for the given field.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnavailableError wraps an underlying store failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a store-infrastructure failure. A nil err
// returns nil so call sites can wrap unconditionally.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
