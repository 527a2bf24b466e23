package repository

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by persistence. Callers MUST NOT collapse
// NotFound into a generic failure — the HTTP shell maps these distinctly.

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func Conflict(reason string) error {
	return &ConflictError{Reason: reason}
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "transient: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

func Transient(cause error) error {
	return &TransientError{Cause: cause}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// ValidationError carries every validation message for a request in one
// shot, rather than failing fast on the first. Shared across coordinator
// and reconciler so a single apiresponse.Handle case covers both.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Messages)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string { return "invariant violation: " + e.Detail }

func InvariantViolation(detail string) error {
	return &InvariantViolationError{Detail: detail}
}

func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
