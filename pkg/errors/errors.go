package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternal           = errors.New("internal server error")
	ErrValidation         = errors.New("validation error")
	ErrInvalidState       = errors.New("invalid state")
	ErrAmountExceedsLimit = errors.New("amount exceeds limit")
	ErrDuplicatePeriod    = errors.New("duplicate period")
	ErrNoFinancialInfo    = errors.New("no financial info")
	ErrNoRepaymentPlan    = errors.New("no repayment plan")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidState reports an operation that is not allowed in the record's current status.
func InvalidState(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidState,
		Code:       "INVALID_STATE",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// AmountExceedsLimit is a validation failure carrying its own code so clients can
// show the allowed maximum.
func AmountExceedsLimit(limit string) *AppError {
	return &AppError{
		Err:        ErrAmountExceedsLimit,
		Code:       "AMOUNT_EXCEEDS_LIMIT",
		Message:    fmt.Sprintf("amount exceeds the allowed limit of %s", limit),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{"amount": "must not exceed " + limit},
	}
}

func DuplicatePeriod(employeeID string, month, year int) *AppError {
	return &AppError{
		Err:        ErrDuplicatePeriod,
		Code:       "DUPLICATE_PERIOD",
		Message:    fmt.Sprintf("payslip for employee %s already exists for %04d-%02d", employeeID, year, month),
		StatusCode: http.StatusConflict,
	}
}

func NoFinancialInfo(employeeID string) *AppError {
	return &AppError{
		Err:        ErrNoFinancialInfo,
		Code:       "NO_FINANCIAL_INFO",
		Message:    fmt.Sprintf("no financial information for employee %s", employeeID),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NoRepaymentPlan(advanceID string) *AppError {
	return &AppError{
		Err:        ErrNoRepaymentPlan,
		Code:       "NO_REPAYMENT_PLAN",
		Message:    fmt.Sprintf("salary advance %s has no repayment plan", advanceID),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
