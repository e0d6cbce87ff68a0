package authz

import (
	"errors"
	"fmt"
)

// ErrPersistence marks failures of the backing store.
var ErrPersistence = errors.New("authz: persistence failed")

// PersistenceError reports a store failure during load or save. It matches both
// ErrPersistence and the underlying cause with errors.Is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("authz: %s matrix: %v", e.Op, e.Err)
}

// Unwrap exposes ErrPersistence and the cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
