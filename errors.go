package mimic

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any [*NotFoundError]
	ErrNotFound = errors.New("not found")
	// ErrUnsupported matches any [*UnsupportedOperationError]
	ErrUnsupported = errors.New("unsupported operation")
)

// NotFoundError is returned when a requested directory does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("directory not found: %q", e.Path)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnsupportedOperationError is returned when a mutating operation is invoked
// on an immutable tree.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s: tree is immutable", e.Op)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupported
}
