package share

import (
	"errors"
	"fmt"
)

// Lifecycle and access errors. NotFound deliberately covers unknown, deleted
// and reaped shares alike.
var (
	ErrInvalidID            = errors.New("invalid share identifier")
	ErrNotFound             = errors.New("share not found or expired")
	ErrExpired              = errors.New("share has expired")
	ErrViewLimitExceeded    = errors.New("view limit exceeded")
	ErrPasswordRequired     = errors.New("password required")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrStorageInconsistency = errors.New("share content missing")
	ErrCorruptRecord        = errors.New("corrupt share record")
)

// ValidationError reports malformed upload input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
