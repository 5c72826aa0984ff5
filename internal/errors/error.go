package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError is malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ExhaustionError means no sending account can take another message right now.
type ExhaustionError struct {
	Reason     string
	Considered int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("no eligible sending account: %s (considered %d)", e.Reason, e.Considered)
}

// VerificationError is a DNS or network failure while checking a record.
type VerificationError struct {
	Domain     string
	RecordType string
	Err        error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s verification of %s failed: %v", e.RecordType, e.Domain, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// PersistenceError is a storage failure. Operations that hit one fail closed.
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConflictError is a request that is well formed but not allowed in the entity's current state.
type ConflictError struct {
	Message string
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return e.Message
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsExhaustion(err error) bool {
	var target *ExhaustionError
	return errors.As(err, &target)
}

func IsVerification(err error) bool {
	var target *VerificationError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
