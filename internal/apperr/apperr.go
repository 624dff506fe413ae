// internal/apperr/apperr.go
//
// Error taxonomy shared by the stores, the publish orchestrator, and the
// HTTP surfaces.
//
// Context
// -------
// Three caller-facing kinds exist:
//
//   - ValidationError  – malformed input (bad reorder payload, unknown unit
//     on append, empty snapshot).
//   - NotFoundError    – the entity is absent or outside the caller's
//     tenant scope.  Scope violations are never reported as "forbidden".
//   - ConflictError    – uniqueness violations such as a duplicate slug.
//
// Everything else is an internal error and propagates as-is.  Callers test
// with errors.As through the IsX helpers so wrapped errors still match.
//
// Notes
// -----
//   - Status maps a kind to the HTTP status used by the editor API.
//   - Oxford commas, two spaces after periods.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing or out-of-scope entity.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Key)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.  The key is formatted with %v so numeric
// ids can be passed directly.
func NotFound(resource string, key any) error {
	return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
}

// Conflict builds a ConflictError.
func Conflict(resource string, key any) error {
	return &ConflictError{Resource: resource, Key: fmt.Sprint(key)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Status returns the HTTP status code for err.  Unknown errors map to 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
