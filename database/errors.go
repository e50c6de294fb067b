package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"longentry/market"
)

// ErrNotConnected is returned when the database was never opened or is closed
var ErrNotConnected = errors.New("database not connected")

// DBError represents a database operation error with context
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// ConflictError reports a write that lost a concurrent update race: a row
// changed between read and write, or PostgreSQL aborted the transaction with a
// serialization failure or deadlock.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s conflict on %s %s: %s", market.ErrPersistenceConflict, e.Resource, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s conflict on %s: %s", market.ErrPersistenceConflict, e.Resource, e.Reason)
}

// Unwrap lets errors.Is match market.ErrPersistenceConflict
func (e *ConflictError) Unwrap() error {
	return market.ErrPersistenceConflict
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, key, reason string) error {
	return &ConflictError{
		Resource: resource,
		Key:      key,
		Reason:   reason,
	}
}

// IsConflict reports whether err is a persistence conflict.
func IsConflict(err error) bool {
	return errors.Is(err, market.ErrPersistenceConflict)
}

// PostgreSQL error codes that mean "retry the transaction".
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// MapConflict turns serialization failures and deadlocks into a ConflictError
// for resource. Other errors are returned unchanged.
func MapConflict(resource string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return &ConflictError{Resource: resource, Reason: pqErr.Message}
		}
	}
	return err
}

// WrapDBError wraps a database error with operation context
// This provides better error messages and makes debugging easier
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource string) error {
	return &NotFoundError{
		Resource: resource,
	}
}

// NewNotFoundErrorWithID creates a new NotFoundError with an ID
func NewNotFoundErrorWithID(resource string, id interface{}) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
	}
}

// NewValidationErrorWithValue creates a new ValidationError with a value
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Value:  value,
	}
}
