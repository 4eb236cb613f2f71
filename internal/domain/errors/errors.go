package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid payment state transition")
)

// Error codes surfaced to clients verbatim
const (
	CodeAuthRequired            = "AUTH_REQUIRED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeAPIKeyInvalid           = "API_KEY_INVALID"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeValidationError         = "VALIDATION_ERROR"
	CodePaymentNotFound         = "PAYMENT_NOT_FOUND"
	CodePaymentExpired          = "PAYMENT_EXPIRED"
	CodeRefundNotAllowed        = "REFUND_NOT_ALLOWED"
	CodeRefundExceedsAmount     = "REFUND_EXCEEDS_AMOUNT"
	CodeIdempotencyConflict     = "IDEMPOTENCY_CONFLICT"
	CodeResourceNotFound        = "RESOURCE_NOT_FOUND"
	CodeProviderError           = "PROVIDER_ERROR"
	CodeProviderTimeout         = "PROVIDER_TIMEOUT"
	CodeProviderUnavailable     = "PROVIDER_UNAVAILABLE"
	CodeInternalError           = "INTERNAL_ERROR"
)

// AppError represents an application error with an HTTP status and a stable code
type AppError struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured detail fields
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors

func AuthRequired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeAuthRequired, message, ErrUnauthorized)
}

func InvalidCredentials(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidCredentials, message, ErrUnauthorized)
}

func TokenExpired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, message, ErrUnauthorized)
}

func TokenInvalid(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenInvalid, message, ErrUnauthorized)
}

func InsufficientPermissions(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeInsufficientPermissions, message, ErrForbidden)
}

func APIKeyInvalid(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeAPIKeyInvalid, message, ErrUnauthorized)
}

func Validation(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeValidationError, message, ErrInvalidInput)
}

func PaymentNotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodePaymentNotFound, message, ErrNotFound)
}

func PaymentExpired(message string) *AppError {
	return NewAppError(http.StatusGone, CodePaymentExpired, message, ErrInvalidTransition)
}

func RefundNotAllowed(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeRefundNotAllowed, message, ErrInvalidTransition)
}

func RefundExceedsAmount(message string) *AppError {
	return NewAppError(http.StatusUnprocessableEntity, CodeRefundExceedsAmount, message, ErrInvalidInput)
}

func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeResourceNotFound, message, ErrNotFound)
}

func IdempotencyConflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeIdempotencyConflict, message, ErrAlreadyExists)
}

func ProviderError(err error) *AppError {
	return NewAppError(http.StatusBadGateway, CodeProviderError, "payment provider error", err)
}

func ProviderTimeout(err error) *AppError {
	return NewAppError(http.StatusGatewayTimeout, CodeProviderTimeout, "payment provider timed out", err)
}

func ProviderUnavailable(err error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeProviderUnavailable, "payment provider unavailable", err)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}
