package repo

import (
	"errors"
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	err := Error{
		Type:    ErrorTypeValidation,
		Message: "validation failed",
		Code:    "INVALID_EMAIL",
	}

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected error type validation, got %s", err.Type)
	}
	if err.Code != "INVALID_EMAIL" {
		t.Errorf("Expected code 'INVALID_EMAIL', got '%s'", err.Code)
	}
}

func TestErrorError(t *testing.T) {
	err := Error{Type: ErrorTypeNotFound, Message: "user not found"}

	expected := "not_found: user not found"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := errors.New("database connection failed")
	err := NewErrorWithCause(ErrorTypeConnection, "failed to connect", cause)

	expectedMsg := "connection: failed to connect (caused by: database connection failed)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}

func TestErrorIs(t *testing.T) {
	err1 := Error{Type: ErrorTypeValidation, Message: "validation error"}
	err2 := Error{Type: ErrorTypeValidation, Message: "different validation error"}
	err3 := Error{Type: ErrorTypeNotFound, Message: "not found error"}

	if !errors.Is(err1, err2) {
		t.Error("Expected errors with same type to be equal")
	}
	if errors.Is(err1, err3) {
		t.Error("Expected errors with different types to not be equal")
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", NewError(ErrorTypeNotFound, "x"), IsNotFound, true},
		{"duplicate", NewError(ErrorTypeDuplicate, "x"), IsDuplicate, true},
		{"validation", NewError(ErrorTypeValidation, "x"), IsValidation, true},
		{"connection", NewError(ErrorTypeConnection, "x"), IsConnection, true},
		{"transaction", NewError(ErrorTypeTransaction, "x"), IsTransaction, true},
		{"invalid argument", invalidf("bad %s", "filter"), IsInvalidArgument, true},
		{"unsupported", Unsupported("mongo", "HAS"), IsUnsupported, true},
		{"wrapped", fmt.Errorf("filter 2: %w", invalidf("bad")), IsInvalidArgument, true},
		{"plain error", errors.New("boom"), IsNotFound, false},
		{"nil", nil, IsNotFound, false},
		{"other type", NewError(ErrorTypeInternal, "x"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.want {
				t.Errorf("got %v, want %v for %v", got, tt.want, tt.err)
			}
		})
	}
}

func TestNewErrorWithCode(t *testing.T) {
	err := NewErrorWithCode(ErrorTypeConstraint, "fk violated", "23503")
	if err.Code != "23503" || err.Type != ErrorTypeConstraint {
		t.Errorf("unexpected error %+v", err)
	}
}
