package errors

import (
	"errors"
	"fmt"
)

// Error types surfaced by the correlation core
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeRule       ErrorType = "rule_evaluation"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithField records the offending field
func (e *AppError) WithField(field string) *AppError {
	return e.WithDetails(map[string]interface{}{"field": field})
}

// WithID records the offending identifier
func (e *AppError) WithID(id interface{}) *AppError {
	return e.WithDetails(map[string]interface{}{"id": fmt.Sprint(id)})
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Code:    "RESOURCE_NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]interface{}{"resource": resource},
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
}

// NewRuleEvaluationError reports a strategy failure for a single rule and event pair
func NewRuleEvaluationError(rule string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeRule,
		Code:    "RULE_EVALUATION_FAILED",
		Message: fmt.Sprintf("rule %q evaluation failed", rule),
		Details: map[string]interface{}{"rule": rule},
		Cause:   cause,
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

func IsConflict(err error) bool { return IsType(err, ErrorTypeConflict) }

// Detail extracts a detail value from an AppError in the chain
func Detail(err error, key string) (interface{}, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Details == nil {
		return nil, false
	}
	v, ok := appErr.Details[key]
	return v, ok
}
