package permission

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownKey indicates a role, module, or action outside the closed enumerations.
	ErrUnknownKey = errors.New("permission: unknown key")
	// ErrValidation indicates a proposed matrix was rejected.
	ErrValidation = errors.New("permission: validation failed")
	// ErrStaleRevision indicates a replace was based on a matrix that is no longer current.
	ErrStaleRevision = errors.New("permission: stale revision")
)

// ValidationError lists every problem found in a proposed matrix.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
