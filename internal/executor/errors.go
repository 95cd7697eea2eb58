package executor

import (
	"errors"
	"fmt"

	"github.com/adrianmcphee/cimodel/internal/storage"
)

// SQLSTATE codes reported to clients
const (
	CodeSyntaxError               = "42601"
	CodeUndefinedTable            = "42P01"
	CodeDuplicateTable            = "42P07"
	CodeInvalidName               = "42602"
	CodeUniqueViolation           = "23505"
	CodeDatatypeMismatch          = "42804"
	CodeNumericOutOfRange         = "22003"
	CodeInvalidTextRepresentation = "22P02"
	CodeFeatureUnsupported        = "0A000"
	CodeInFailedTransaction       = "25P02"
	CodeActiveTransaction         = "25001"
	CodeNoActiveTransaction       = "25P01"
	CodeInternalError             = "XX000"
)

var (
	ErrTransactionAborted = errors.New("current transaction is aborted, commands ignored until end of transaction block")
	ErrUnsupported        = errors.New("unsupported statement")
)

// Error carries the SQLSTATE a statement failed with
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func sqlError(code string, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Code returns the SQLSTATE for err
func Code(err error) string {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, storage.ErrDuplicateID):
		return CodeUniqueViolation
	case errors.Is(err, storage.ErrNoSuchTable):
		return CodeUndefinedTable
	case errors.Is(err, storage.ErrTableExists):
		return CodeDuplicateTable
	case errors.Is(err, storage.ErrInvalidTable):
		return CodeInvalidName
	case errors.Is(err, ErrTransactionAborted):
		return CodeInFailedTransaction
	case errors.Is(err, ErrUnsupported):
		return CodeFeatureUnsupported
	}
	return CodeInternalError
}
