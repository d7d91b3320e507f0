package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error raised during a run.
type ErrorClass string

const (
	// ErrorClassPredicate indicates the predicate itself failed to produce a verdict.
	// The run is aborted and whatever the registry holds is all that was found.
	ErrorClassPredicate ErrorClass = "predicate"

	// ErrorClassCanceled indicates the run context was canceled or its deadline passed.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassConfiguration indicates the engine was wired incorrectly.
	// Examples: missing ordering, missing predicate, unknown strategy.
	ErrorClassConfiguration ErrorClass = "configuration"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Strategy is the enumeration strategy that was running, if any.
	Strategy string `json:"strategy,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Strategy != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (strategy=%s, operation=%s): %s",
			e.Class, e.Message, e.Strategy, e.Operation, e.unwrapMessage())
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation=%s): %s",
			e.Class, e.Message, e.Operation, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPredicateError creates a new predicate error. Context cancellation is
// reclassified so callers can tell an aborted run from a broken predicate.
func NewPredicateError(message string, err error) *EngineError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCanceledError(message, err)
	}
	return &EngineError{
		Class:   ErrorClassPredicate,
		Message: message,
		Code:    ErrCodePredicateFailed,
		Err:     err,
	}
}

// NewCanceledError creates a new cancellation error.
func NewCanceledError(message string, err error) *EngineError {
	code := ErrCodeCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &EngineError{
		Class:   ErrorClassCanceled,
		Message: message,
		Code:    code,
		Err:     err,
	}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfiguration,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// WithStrategy adds strategy context to an error.
func (e *EngineError) WithStrategy(strategy string) *EngineError {
	e.Strategy = strategy
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsPredicate returns true if the error is classified as a predicate failure.
func IsPredicate(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPredicate
	}
	return false
}

// IsCanceled returns true if the error is classified as a cancellation.
func IsCanceled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCanceled
	}
	return false
}

// IsConfiguration returns true if the error is classified as a wiring mistake.
func IsConfiguration(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfiguration
	}
	return false
}

// ClassOf returns the class of err, or the empty string for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodePredicateFailed = "PREDICATE_FAILED"
	ErrCodeCanceled        = "CANCELED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeUnknownStrategy = "UNKNOWN_STRATEGY"
)
