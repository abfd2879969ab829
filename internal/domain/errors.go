package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrDuplicateMessageID = errors.New("duplicate message id")
	ErrValidation         = errors.New("validation failed")
	ErrPolicyDenied       = errors.New("denied by send policy")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
