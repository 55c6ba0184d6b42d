package booking

import (
	"errors"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/assignment"
)

var (
	ErrInvalidRequest  = errors.New("invalid booking request")
	ErrNoHostAvailable = assignment.ErrNoHostAvailable
	ErrConflict        = errors.New("time slot is no longer available")
)

// ValidationError carries the user-facing reason a request was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
