// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSealed            = errors.New("capsule sealed")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
)

// AppError is an error that already knows how it should be rendered.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
	Details    any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details any) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsClientError reports errors caused by the caller rather than the
// service.
func IsClientError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.StatusCode < http.StatusInternalServerError
	}
	for _, target := range []error{
		ErrNotFound, ErrForbidden, ErrUnauthorized, ErrInvalidInput,
		ErrDuplicateKey, ErrInsufficientFunds, ErrSealed,
		ErrTokenExpired, ErrTokenInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func BadRequestError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "BAD_REQUEST")
}

func NotFoundError(resource string) *AppError {
	return NewAppError(ErrNotFound, resource+" not found", http.StatusNotFound, "NOT_FOUND")
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func DuplicateError(field string) *AppError {
	return NewAppError(ErrDuplicateKey, field+" already exists", http.StatusConflict, "DUPLICATE")
}

func InsufficientFundsError() *AppError {
	return NewAppError(
		ErrInsufficientFunds,
		"not enough coins",
		http.StatusBadRequest,
		"INSUFFICIENT_FUNDS",
	)
}

func SealedError(message string) *AppError {
	return NewAppError(ErrSealed, message, http.StatusForbidden, "CAPSULE_SEALED")
}

func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "token has expired", http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "invalid token", http.StatusUnauthorized, "TOKEN_INVALID")
}
