package train

import (
	"errors"
	"fmt"
)

// ErrNonFiniteLoss marks a NaN/Inf training loss. Always fatal: the loop
// halts immediately rather than training past a diverged step.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// NonFiniteLossError carries the offending value; errors.Is matches
// ErrNonFiniteLoss.
type NonFiniteLossError struct {
	Loss float64
}

func (e *NonFiniteLossError) Error() string {
	return fmt.Sprintf("non-finite loss: %v", e.Loss)
}

func (e *NonFiniteLossError) Unwrap() error { return ErrNonFiniteLoss }

// ErrCorruptCheckpoint marks a state file that exists but cannot be
// deserialized. This must never be conflated with "no checkpoint": a fresh
// start over a corrupt state file would silently discard training progress.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// CorruptCheckpointError records which file was unreadable and why.
type CorruptCheckpointError struct {
	Path string
	Err  error
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s: %v", e.Path, e.Err)
}

func (e *CorruptCheckpointError) Unwrap() error { return ErrCorruptCheckpoint }
