/*
errors.go - Centralized error types for the chore engine

PURPOSE:
  All error types in one place. The HTTP layer maps each sentinel to exactly
  one status code; anything that is not one of these is an internal error.

ERROR CATEGORIES:
  1. Access errors - ErrUnauthorized, ErrForbidden, ErrNotFound
  2. State errors - ErrConflict (task already completed)
  3. Input errors - ValidationError, ErrInvalidAmount

ANTI-ENUMERATION:
  Child-scoped reads return ErrNotFound both when the child does not exist
  and when the caller may not see it. Callers never get to tell them apart.
*/
package chores

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a resource is absent or masked as absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a PIN does not match.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is known but not permitted.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a task is no longer open.
	ErrConflict = errors.New("task already completed")

	// ErrInvalidAmount is returned for a zero-point ledger credit.
	ErrInvalidAmount = errors.New("point amount must not be 0")

	// ErrValidation is the sentinel behind every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError carries one message per offending input field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// add records a field message; the first message per field wins.
func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// orNil returns e as an error only when at least one field failed.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing (or masked) resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
