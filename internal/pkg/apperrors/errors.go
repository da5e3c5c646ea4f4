package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthFailed       ErrorType = "AUTH_FAILED"
	ErrUnauthorized     ErrorType = "UNAUTHORIZED"
	ErrInvalidRequest   ErrorType = "INVALID_REQUEST"
	ErrNotFound         ErrorType = "NOT_FOUND"
	ErrCapViolation     ErrorType = "CAP_VIOLATION"
	ErrPhaseViolation   ErrorType = "PHASE_VIOLATION"
	ErrBelowMinimum     ErrorType = "BELOW_MINIMUM"
	ErrSaleState        ErrorType = "SALE_STATE"
	ErrAlreadyDone      ErrorType = "ALREADY_DONE"
	ErrInsufficientPool ErrorType = "INSUFFICIENT_POOL"
	ErrNothingToRelease ErrorType = "NOTHING_TO_RELEASE"
	ErrRateLimited      ErrorType = "RATE_LIMITED"
	ErrReadOnly         ErrorType = "READ_ONLY"
	ErrInternal         ErrorType = "INTERNAL_ERROR"
	ErrUpstream         ErrorType = "UPSTREAM_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Kind       string    `json:"kind,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// WithKind tags the error with the domain failure kind it came from.
func (e *AppError) WithKind(kind string) *AppError {
	e.Kind = kind
	return e
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrCapViolation, ErrPhaseViolation, ErrBelowMinimum:
		return http.StatusUnprocessableEntity
	case ErrSaleState, ErrAlreadyDone, ErrInsufficientPool, ErrNothingToRelease:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAuthFailed:
		return "Check the admin key and caller address headers."
	case ErrUnauthorized:
		return "Only the sale owner may perform this operation."
	case ErrCapViolation:
		return "Lower the amount to fit the remaining allowance."
	case ErrPhaseViolation:
		return "Check the sale schedule and the investor's whitelist status."
	case ErrBelowMinimum:
		return "Increase the amount to at least the minimum investment."
	case ErrNothingToRelease:
		return "Wait until more tokens have vested."
	case ErrRateLimited:
		return "Retry after a short delay."
	case ErrReadOnly:
		return "The sale is paused for maintenance; retry later."
	default:
		return ""
	}
}
