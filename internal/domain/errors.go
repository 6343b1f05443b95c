// Package domain defines the error types shared across the advisor.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a duplicate query block id).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// MalformedEdgeError reports an edge set and instance set that disagree: an
// edge names an instance missing from the set that owns it, or (with Edge
// empty) an instance is the endpoint of no edge. Scope is the query block or
// join set the mismatch was found in. The front end produced the input, so
// the caller must fix it; the engine never guesses a replacement instance.
type MalformedEdgeError struct {
	Scope    string
	Edge     string
	Instance string
}

func (e *MalformedEdgeError) Error() string {
	if e.Edge == "" {
		return fmt.Sprintf("%s: instance %q is not an endpoint of any edge", e.Scope, e.Instance)
	}
	return fmt.Sprintf("%s: edge %s references unknown instance %q", e.Scope, e.Edge, e.Instance)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
