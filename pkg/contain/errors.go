package contain

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a simulation error.
type ErrorClass string

const (
	// ErrorClassInvalidInput indicates the inputs were rejected before any
	// stepping took place. Retrying with the same inputs fails the same way.
	ErrorClassInvalidInput ErrorClass = "invalid_input"

	// ErrorClassCancelled indicates the caller's context ended between passes.
	ErrorClassCancelled ErrorClass = "cancelled"

	// ErrorClassInternal indicates a violated internal invariant.
	ErrorClassInternal ErrorClass = "internal"
)

// Error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidAttackTime = "INVALID_ATTACK_TIME"
	ErrCodeNegativeArrival   = "NEGATIVE_ARRIVAL"
	ErrCodeMissingForce      = "MISSING_FORCE"
	ErrCodeIndexOutOfRange   = "INDEX_OUT_OF_RANGE"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching compares Class and Code only.
var (
	ErrInvalidAttackTime = &Error{Class: ErrorClassInvalidInput, Code: ErrCodeInvalidAttackTime}
	ErrNegativeArrival   = &Error{Class: ErrorClassInvalidInput, Code: ErrCodeNegativeArrival}
	ErrMissingForce      = &Error{Class: ErrorClassInvalidInput, Code: ErrCodeMissingForce}
	ErrIndexOutOfRange   = &Error{Class: ErrorClassInvalidInput, Code: ErrCodeIndexOutOfRange}
)

// Error is a classified simulation error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s (op=%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassInvalidInput,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewCancelledError creates a new cancellation error.
func NewCancelledError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassCancelled,
		Message: message,
		Code:    ErrCodeCancelled,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassInternal,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode sets the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsInvalidInput returns true if the error is classified as invalid input.
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassInvalidInput
	}
	return false
}

// IsCancelled returns true if the error is classified as cancelled.
func IsCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassCancelled
	}
	return false
}
