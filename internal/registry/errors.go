package registry

import "errors"

var (
	// ErrNotFound indicates the referenced document no longer exists.
	ErrNotFound = errors.New("document not found")
	// ErrIllegalTransition indicates a status change outside the state machine.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrConflict indicates a conditional update lost to a concurrent writer.
	ErrConflict = errors.New("concurrent status change")
	// ErrNotContainer indicates a container-only operation on a standalone document.
	ErrNotContainer = errors.New("document is not a container")
)
