package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched with errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrDependency   = errors.New("dependency unavailable")
	ErrTaskFailure  = errors.New("task failed")
	ErrInternal     = errors.New("internal error")
)

// Kind classifies an AppError. Every kind maps to exactly one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidInput
	KindConflict
	KindNotFound
	KindDependency
	KindTaskFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	case KindTaskFailure:
		return "task_failure"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		// Duplicate unique keys are reported as a bad request.
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error.
func (e *AppError) Status() int {
	return e.Kind.Status()
}

// Validation creates a 422 error carrying field-level messages.
func Validation(message string, fields map[string]string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Fields:  fields,
		Err:     ErrValidation,
	}
}

// InvalidInput creates a 400 error for malformed request parameters.
func InvalidInput(message string) *AppError {
	return &AppError{
		Kind:    KindInvalidInput,
		Code:    "INVALID_INPUT",
		Message: message,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates an error for a unique-key collision.
func Conflict(resource, field, value string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    "CONFLICT",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Err:     ErrConflict,
	}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Err:     ErrNotFound,
	}
}

// Dependency wraps a failure of a secondary system (index, cache, queue).
func Dependency(op string, err error) *AppError {
	return &AppError{
		Kind:    KindDependency,
		Code:    "DEPENDENCY_UNAVAILABLE",
		Message: op,
		Err:     errors.Join(ErrDependency, err),
	}
}

// TaskFailure wraps a propagation handler error.
func TaskFailure(task string, err error) *AppError {
	return &AppError{
		Kind:    KindTaskFailure,
		Code:    "TASK_FAILED",
		Message: task,
		Err:     errors.Join(ErrTaskFailure, err),
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf reports the kind of err, falling back to sentinel matching for
// errors that are not AppErrors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrDependency):
		return KindDependency
	case errors.Is(err, ErrTaskFailure):
		return KindTaskFailure
	default:
		return KindInternal
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
