package jobs

import "errors"

// Caller errors, rejected synchronously at submission; they never enter the
// state machine.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("invalid config")
)

// ErrNotFound is returned for lookups and updates against unknown or deleted
// job ids.
var ErrNotFound = errors.New("job not found")

// ErrTransition is returned when an update would move a job backwards in the
// stage order or mutate a terminal job.
var ErrTransition = errors.New("illegal status transition")
