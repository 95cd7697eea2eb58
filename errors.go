package cimodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Record errors
	ErrMissingUpdateCondition = errors.New("missing update condition")
	ErrMissingDeleteCondition = errors.New("missing delete condition")
	ErrPersistenceFailure     = errors.New("persistence failure")

	// Query errors
	ErrUnsupportedOperator = errors.New("unsupported condition operator")

	// Transaction errors
	ErrNoTransaction = errors.New("no transaction in progress")

	// Cache errors
	ErrCacheMiss = errors.New("cache miss")

	// Configuration errors
	ErrUnknownType   = errors.New("unknown record type")
	ErrDuplicateType = errors.New("record type already registered")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// PersistenceError is returned when an insert cannot be completed.
// Statement holds the last statement the gateway attempted, if it reported one.
type PersistenceError struct {
	Table     string
	Statement string
	Err       error // gateway error, nil when the gateway returned no identifier
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%v: saving to table %q failed", ErrPersistenceFailure, e.Table)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Statement != "" {
		msg += "; last statement: " + e.Statement
	}
	return msg
}

// Unwrap exposes both ErrPersistenceFailure and the underlying gateway error to errors.Is/As.
func (e *PersistenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPersistenceFailure}
	}
	return []error{ErrPersistenceFailure, e.Err}
}

// IsMissingCondition checks if an error was caused by a record lacking its id field value
func IsMissingCondition(err error) bool {
	return errors.Is(err, ErrMissingUpdateCondition) || errors.Is(err, ErrMissingDeleteCondition)
}

// IsUnknownType checks if an error is a record type resolution failure
func IsUnknownType(err error) bool {
	return errors.Is(err, ErrUnknownType)
}

// IsPermanent checks if an error is permanent (retrying the same call cannot succeed)
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMissingUpdateCondition) ||
		errors.Is(err, ErrMissingDeleteCondition) ||
		errors.Is(err, ErrUnknownType) ||
		errors.Is(err, ErrDuplicateType) ||
		errors.Is(err, ErrUnsupportedOperator) ||
		errors.Is(err, ErrInvalidConfig)
}
