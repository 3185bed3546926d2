// Package wmserrors contains the generic errors returned by the job state store.
// The HTTP layer looks for the error types defined in this file and sets the response
// status code accordingly.
//
// Errors are wrapped with github.com/pkg/errors on their way up; the helpers here use
// errors.As so that wrapping never hides the original type.
package wmserrors

import (
	"fmt"
	"net/http"

	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "job" or "site"
	Value   string // Resource name, e.g., "LCG.CERN.ch"
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "MinorStatus"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrPolicy is returned when an operation is refused by the store's own rules:
// an illegal status transition, an exhausted reschedule budget, rescheduling an
// unverified job or advancing past the last optimizer. The refused operation has
// no effect on stored state, with the single exception of the reschedule limit,
// which moves the job to Failed before returning this error.
type ErrPolicy struct {
	JobId   int64
	Rule    string // Short name of the rule that refused the operation, e.g., "MaxRescheduling"
	Message string
}

func (err *ErrPolicy) Error() string {
	if err.JobId != 0 {
		return fmt.Sprintf("job %d refused by %s: %s", err.JobId, err.Rule, err.Message)
	}
	return fmt.Sprintf("refused by %s: %s", err.Rule, err.Message)
}

// ErrStorage wraps an error returned by the backing store. It is never retried inside the store.
type ErrStorage struct {
	Operation string
	Cause     error
}

func (err *ErrStorage) Error() string {
	return fmt.Sprintf("storage error during %s: %v", err.Operation, err.Cause)
}

func (err *ErrStorage) Unwrap() error {
	return err.Cause
}

// PgCode returns the postgres SQLSTATE of the wrapped error, or the empty string if the
// underlying error did not come from postgres.
func (err *ErrStorage) PgCode() string {
	var pgErr *pgconn.PgError
	if errors.As(err.Cause, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ErrDecoding is returned when a stored value cannot be decoded from its text encoding.
type ErrDecoding struct {
	Field string
	Cause error
}

func (err *ErrDecoding) Error() string {
	return fmt.Sprintf("could not decode stored %s: %v", err.Field, err.Cause)
}

func (err *ErrDecoding) Unwrap() error {
	return err.Cause
}

// NewStorageError wraps err as an *ErrStorage with a stack trace. Nil stays nil.
func NewStorageError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&ErrStorage{Operation: operation, Cause: err})
}

// IsPolicy reports whether the chain contains an *ErrPolicy.
func IsPolicy(err error) bool {
	var e *ErrPolicy
	return errors.As(err, &e)
}

// IsNotFound reports whether the chain contains an *ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

// HTTPStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrAlreadyExists
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrPolicy
		if errors.As(err, &e) {
			return http.StatusUnprocessableEntity
		}
	}
	{
		var e *ErrDecoding
		if errors.As(err, &e) {
			return http.StatusInternalServerError
		}
	}
	{
		var e *ErrStorage
		if errors.As(err, &e) {
			return http.StatusServiceUnavailable
		}
	}

	return http.StatusInternalServerError
}
