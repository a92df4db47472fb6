package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies the kind of failure surfaced to API clients
type ErrorCode string

const (
	ErrValidation          ErrorCode = "VALIDATION_ERROR"
	ErrInvalidParameters   ErrorCode = "INVALID_PARAMETERS"
	ErrUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrContentTooLarge     ErrorCode = "CONTENT_TOO_LARGE"
	ErrLinterNotFound      ErrorCode = "LINTER_NOT_FOUND"
	ErrLinterExecution     ErrorCode = "LINTER_EXECUTION_FAILED"
	ErrWorkspace           ErrorCode = "WORKSPACE_ERROR"
	ErrTimeout             ErrorCode = "TIMEOUT_ERROR"
	ErrJobNotFound         ErrorCode = "JOB_NOT_FOUND"
	ErrJobAlreadyCancelled ErrorCode = "JOB_ALREADY_CANCELLED"
	ErrRateLimitExceeded   ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCache               ErrorCode = "CACHE_ERROR"
	ErrDatabase            ErrorCode = "DATABASE_ERROR"
	ErrInternal            ErrorCode = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus maps the error kind to its transport status code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrValidation, ErrInvalidParameters, ErrUnsupportedFormat:
		return http.StatusBadRequest
	case ErrContentTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrLinterNotFound, ErrLinterExecution, ErrWorkspace, ErrJobAlreadyCancelled:
		return http.StatusUnprocessableEntity
	case ErrTimeout:
		return http.StatusRequestTimeout
	case ErrJobNotFound:
		return http.StatusNotFound
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the typed error carried through the pipeline and rendered by
// the HTTP layer. Details is optional structured context.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
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

// WithDetails attaches structured context and returns the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewAppError builds an AppError for the given kind
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: ErrValidation, Message: message}
}

func NewInvalidParametersError(message string) *AppError {
	return &AppError{Code: ErrInvalidParameters, Message: message}
}

func NewUnsupportedFormatError(linter, format string) *AppError {
	return &AppError{
		Code:    ErrUnsupportedFormat,
		Message: fmt.Sprintf("linter %s does not support format %s", linter, format),
	}
}

func NewContentTooLargeError(message string) *AppError {
	return &AppError{Code: ErrContentTooLarge, Message: message}
}

func NewLinterNotFoundError(linter string) *AppError {
	return &AppError{Code: ErrLinterNotFound, Message: fmt.Sprintf("linter not found: %s", linter)}
}

func NewLinterExecutionError(message string, err error) *AppError {
	return &AppError{Code: ErrLinterExecution, Message: message, Err: err}
}

func NewWorkspaceError(message string, err error) *AppError {
	return &AppError{Code: ErrWorkspace, Message: message, Err: err}
}

func NewTimeoutError(message string) *AppError {
	return &AppError{Code: ErrTimeout, Message: message}
}

func NewJobNotFoundError(jobID string) *AppError {
	return &AppError{Code: ErrJobNotFound, Message: fmt.Sprintf("job not found: %s", jobID)}
}

func NewJobAlreadyCancelledError(jobID string) *AppError {
	return &AppError{Code: ErrJobAlreadyCancelled, Message: fmt.Sprintf("job already in a terminal state: %s", jobID)}
}

func NewCacheError(message string, err error) *AppError {
	return &AppError{Code: ErrCache, Message: message, Err: err}
}

func NewDatabaseError(message string, err error) *AppError {
	return &AppError{Code: ErrDatabase, Message: message, Err: err}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: ErrInternal, Message: message, Err: err}
}

// AsAppError unwraps err to an AppError, or wraps it as an internal fault
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("internal server error", err)
}
