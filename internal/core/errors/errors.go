package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeMissingParameter        ErrorCode = "MISSING_PARAMETER"
	CodeMalformedParameter      ErrorCode = "MALFORMED_PARAMETER"
	CodeCollaboratorUnavailable ErrorCode = "COLLABORATOR_UNAVAILABLE"
	CodeDelegatedFailure        ErrorCode = "DELEGATED_FAILURE"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeValidationError         ErrorCode = "VALIDATION_ERROR"
	CodeInternal                ErrorCode = "INTERNAL_ERROR"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxParameter = "parameter"
	CtxOperation = "operation"
	CtxKeyword   = "keyword"
	CtxTaskID    = "task_id"
	CtxCommand   = "command"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	switch {
	case e.Err != nil && e.Message == "":
		msg = fmt.Sprintf("[%s] %v", e.Code, e.Err)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

// Detail returns the message chain without code prefixes or context maps.
func (e *DomainError) Detail() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return Message(e.Err)
	default:
		return e.Message + ": " + Message(e.Err)
	}
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Message returns the human-readable text of err without code prefix or context.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Detail()
	}
	return err.Error()
}
