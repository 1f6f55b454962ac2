package valueflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("valueflow: not found")
	ErrAlreadyExists = errors.New("valueflow: already exists")
	ErrInvalidInput  = errors.New("valueflow: invalid input")

	// Graph errors
	ErrResourceNotFound = errors.New("valueflow: resource not found")
	ErrProcessNotFound  = errors.New("valueflow: process not found")
	ErrExchangeNotFound = errors.New("valueflow: exchange not found")
	ErrEventNotFound    = errors.New("valueflow: event not found")

	// Traversal errors
	ErrTraversalTooDeep  = errors.New("valueflow: traversal exceeded maximum depth")
	ErrTraversalTooLarge = errors.New("valueflow: traversal exceeded maximum node count")

	// Configuration errors
	ErrInvalidConfig         = errors.New("valueflow: invalid configuration")
	ErrValueEquationNotFound = errors.New("valueflow: value equation not found")
	ErrNoGatherer            = errors.New("valueflow: no gatherer for filter method")

	// Claim errors
	ErrClaimNotFound = errors.New("valueflow: claim not found")

	// Distribution errors
	ErrDistributionNotFound = errors.New("valueflow: distribution not found")
	ErrNothingToDistribute  = errors.New("valueflow: amount to distribute must be positive")

	// Store errors
	ErrStoreNotReady     = errors.New("valueflow: store not ready")
	ErrStoreClosed       = errors.New("valueflow: store is closed")
	ErrTransactionFailed = errors.New("valueflow: transaction failed")
	ErrMigrationFailed   = errors.New("valueflow: migration failed")

	// Lock errors
	ErrLockUnavailable = errors.New("valueflow: distribution lock unavailable")
)

// ValidationError is a configuration problem reported to the caller instead
// of a zero outcome. It matches ErrInvalidConfig with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("valueflow: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidConfig }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "valueflow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("valueflow: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrProcessNotFound) ||
		errors.Is(err, ErrExchangeNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrValueEquationNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrDistributionNotFound)
}

// IsConfigError returns true if the error is a configuration problem the
// caller must fix before retrying.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrNoGatherer)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrLockUnavailable)
}
