// Package services holds the business logic between the transports (HTTP
// handlers, queue worker) and the forecasting pipeline.
package services

import (
	"errors"
	"fmt"
)

// Error codes returned to clients
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidSeries    = "INVALID_SERIES"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeForecastFailed   = "FORECAST_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeTimeout          = "TIMEOUT"
	CodeOverloaded       = "OVERLOADED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ServiceError represents a service layer error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorf creates a ServiceError with a formatted message
func NewServiceErrorf(code, format string, args ...interface{}) *ServiceError {
	return NewServiceError(code, fmt.Sprintf(format, args...))
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the code of a ServiceError anywhere in err's chain.
// Other errors report CodeInternal.
func ErrorCode(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
