// Package errors defines the error taxonomy shared by the cache, the
// replication engine and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure
type ErrorCode string

const (
	// ErrCodeTransientStore means the cache or relational store was unreachable
	ErrCodeTransientStore ErrorCode = "TRANSIENT_STORE"
	// ErrCodeQuery means the warehouse rejected or failed a query
	ErrCodeQuery ErrorCode = "QUERY_ERROR"
	// ErrCodeSerialization means a cache payload could not be round-tripped
	ErrCodeSerialization ErrorCode = "SERIALIZATION"
	// ErrCodeNotFound means the requested table or key does not exist
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidRequest means the caller sent bad input
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeSyncFailed means a table or dataset sync returned an error status
	ErrCodeSyncFailed ErrorCode = "SYNC_FAILED"
	// ErrCodeServiceUnavailable means a dependency is down or the pool is saturated
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeRateLimited means the caller exceeded the request rate
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInternal is anything else
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// HTTPStatus maps the error code to an HTTP status code
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeQuery, ErrCodeSyncFailed:
		return http.StatusBadGateway
	case ErrCodeTransientStore, ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is checks against a code
var (
	ErrTransientStore = &AppError{Code: ErrCodeTransientStore}
	ErrQuery          = &AppError{Code: ErrCodeQuery}
	ErrSerialization  = &AppError{Code: ErrCodeSerialization}
	ErrNotFound       = &AppError{Code: ErrCodeNotFound}
	ErrInvalidRequest = &AppError{Code: ErrCodeInvalidRequest}
)

// Convenience constructors for common errors

func TransientStore(store string, cause error) *AppError {
	return New(ErrCodeTransientStore, fmt.Sprintf("%s unavailable", store), cause).
		WithDetail("store", store)
}

func Query(sql string, cause error) *AppError {
	return New(ErrCodeQuery, "warehouse query failed", cause).
		WithDetail("sql", sql)
}

func Serialization(message string, cause error) *AppError {
	return New(ErrCodeSerialization, message, cause)
}

func NotFound(format string, args ...interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf(format, args...), nil)
}

func InvalidRequest(format string, args ...interface{}) *AppError {
	return New(ErrCodeInvalidRequest, fmt.Sprintf(format, args...), nil)
}

func SyncFailed(message string) *AppError {
	return New(ErrCodeSyncFailed, message, nil)
}

func Unavailable(message string, cause error) *AppError {
	return New(ErrCodeServiceUnavailable, message, cause)
}

func Internal(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// GetCode extracts the error code from an error chain
func GetCode(err error) ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// HTTPStatus extracts the HTTP status for an error chain
func HTTPStatus(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	return http.StatusInternalServerError
}
