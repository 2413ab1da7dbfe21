package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	err := &ServiceError{
		Code:    CodeInvalidSeries,
		Message: "Test error message",
	}

	if err.Error() != "Test error message" {
		t.Errorf("Expected 'Test error message', got '%s'", err.Error())
	}
}

func TestNewServiceError(t *testing.T) {
	err := NewServiceError(CodeNotFound, "Error message")

	if err.Code != CodeNotFound {
		t.Errorf("Expected code '%s', got '%s'", CodeNotFound, err.Code)
	}
	if err.Message != "Error message" {
		t.Errorf("Expected message 'Error message', got '%s'", err.Message)
	}
	if err.Details != nil {
		t.Errorf("Expected nil details, got %v", err.Details)
	}
}

func TestNewServiceErrorf(t *testing.T) {
	err := NewServiceErrorf(CodeInvalidRequest, "months must be between 1 and %d", 60)

	if err.Message != "months must be between 1 and 60" {
		t.Errorf("Unexpected message '%s'", err.Message)
	}
}

func TestNewServiceErrorWithDetails(t *testing.T) {
	details := map[string]interface{}{
		"field":  "months",
		"reason": "out of range",
	}

	err := NewServiceErrorWithDetails(CodeInvalidRequest, "Validation failed", details)

	if err.Code != CodeInvalidRequest {
		t.Errorf("Expected code '%s', got '%s'", CodeInvalidRequest, err.Code)
	}
	if err.Details == nil {
		t.Fatal("Expected non-nil details")
	}
	if err.Details["field"] != "months" {
		t.Errorf("Expected field 'months', got '%v'", err.Details["field"])
	}
}

func TestServiceError_JSONSerialization(t *testing.T) {
	err := NewServiceError(CodeTimeout, "deadline exceeded")

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("Failed to marshal: %v", jsonErr)
	}

	s := string(data)
	if !strings.Contains(s, `"code":"TIMEOUT"`) {
		t.Errorf("Expected code in JSON, got %s", s)
	}
	if strings.Contains(s, "details") {
		t.Errorf("Expected details to be omitted, got %s", s)
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("job failed: %w", NewServiceError(CodeOverloaded, "busy"))

	if got := ErrorCode(wrapped); got != CodeOverloaded {
		t.Errorf("Expected %s, got %s", CodeOverloaded, got)
	}
	if got := ErrorCode(errors.New("boom")); got != CodeInternal {
		t.Errorf("Expected %s, got %s", CodeInternal, got)
	}
}
