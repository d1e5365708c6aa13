package board

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordination taxonomy. Store methods wrap these
// with context, so callers should test with errors.Is.
var (
	// ErrNotFound indicates a referenced project, task, or todo item
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation, such as a
	// duplicate project name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition indicates a status change not permitted by
	// the todo lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDependencyUnmet indicates a claim on a todo item whose
	// dependencies are not all completed.
	ErrDependencyUnmet = errors.New("dependencies not met")

	// ErrLockConflict indicates a file needed by the operation is locked
	// by another holder.
	ErrLockConflict = errors.New("file lock conflict")

	// ErrAlreadyClaimed indicates the todo item was claimed by another
	// agent first, or a terminal transition was attempted by an agent
	// that does not own the item.
	ErrAlreadyClaimed = errors.New("already claimed")
)

// InputError reports a malformed request before it reaches storage, such
// as an empty name or an unknown status string.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
