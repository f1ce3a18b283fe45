package errs

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type ErrorType string

const (
	TypeSourceNotFound  ErrorType = "SOURCE_NOT_FOUND"
	TypeMalformedSource ErrorType = "MALFORMED_SOURCE"
	TypeUnknownColumn   ErrorType = "UNKNOWN_COLUMN"
	TypeLoadFailure     ErrorType = "LOAD_FAILURE"
	TypeSchemaConflict  ErrorType = "SCHEMA_CONFLICT"
	TypeRunInProgress   ErrorType = "RUN_IN_PROGRESS"
)

type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

func New(errType ErrorType, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		if stackErr, ok := err.(*goerrors.Error); ok {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func SourceNotFound(message string, err error) *DomainError {
	return New(TypeSourceNotFound, message, err)
}

func MalformedSource(message string, err error) *DomainError {
	return New(TypeMalformedSource, message, err)
}

func UnknownColumn(message string, err error) *DomainError {
	return New(TypeUnknownColumn, message, err)
}

func LoadFailure(message string, err error) *DomainError {
	return New(TypeLoadFailure, message, err)
}

func SchemaConflict(message string, err error) *DomainError {
	return New(TypeSchemaConflict, message, err)
}

func RunInProgress(message string) *DomainError {
	return New(TypeRunInProgress, message, nil)
}

// Is reports whether any error in err's chain is a DomainError of the given type.
func Is(err error, errType ErrorType) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	if de.Type == errType {
		return true
	}
	return Is(de.Err, errType)
}

// TypeOf returns the type of the outermost DomainError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var de *DomainError
	if !errors.As(err, &de) {
		return "", false
	}
	return de.Type, true
}
