package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuth
	KindTransient
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "internal"
	}
}

var (
	// Validation errors
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrInvalidAccuracy  = errors.New("accuracy must be a non-negative finite number")
	ErrInvalidRoom      = errors.New("room name must be 1-64 characters")
	ErrDefaultRoom      = errors.New("the default room cannot be left")
	ErrInvalidStatus    = errors.New("status must be 1-64 characters")

	// Lookup errors
	ErrUserNotFound     = errors.New("user not found")
	ErrLocationNotFound = errors.New("location not found")

	// Auth errors
	ErrMissingToken = errors.New("authentication token required")
	ErrInvalidToken = errors.New("invalid or expired token")

	// Rate limit errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// WebSocket errors
	ErrInvalidMessageType = errors.New("invalid message type")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
)

type AppError struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		if e.Field != "" {
			return fmt.Sprintf("%s: %s", e.Field, e.Message)
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind onto the REST status code.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable code sent to clients.
func (e *AppError) Code() string {
	switch e.Kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindAuth:
		return "UNAUTHORIZED"
	case KindTransient:
		return "UNAVAILABLE"
	case KindRateLimit:
		return "RATE_LIMIT"
	default:
		return "INTERNAL_ERROR"
	}
}

func Validation(field string, err error) *AppError {
	return &AppError{Kind: KindValidation, Field: field, Message: err.Error(), Err: err}
}

func NotFound(err error) *AppError {
	return &AppError{Kind: KindNotFound, Message: err.Error(), Err: err}
}

func Unauthorized(err error) *AppError {
	return &AppError{Kind: KindAuth, Message: err.Error(), Err: err}
}

func RateLimited(err error) *AppError {
	return &AppError{Kind: KindRateLimit, Message: err.Error(), Err: err}
}

func Transient(err error, message string) *AppError {
	return &AppError{Kind: KindTransient, Message: message, Err: err}
}

func Internal(err error, message string) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return err != nil && KindOf(err) == KindNotFound }
func IsAuth(err error) bool       { return err != nil && KindOf(err) == KindAuth }
func IsTransient(err error) bool  { return err != nil && KindOf(err) == KindTransient }
func IsRateLimit(err error) bool  { return err != nil && KindOf(err) == KindRateLimit }

// As converts any error into an AppError, treating unknown errors as internal.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err, "internal server error")
}
