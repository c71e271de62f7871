package transform

import (
	"errors"
	"fmt"
)

// EntityError is the failure of one source entity. It never aborts a batch.
type EntityError struct {
	EntityID int64
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %d: %v", e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// ErrLinkNotFound is returned when a freshly created public link cannot be
// read back.
var ErrLinkNotFound = errors.New("public link not found after create")

// ErrFieldConflict is returned when an image relation maps onto a field a
// property already filled.
var ErrFieldConflict = errors.New("field already set")
