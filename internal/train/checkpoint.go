package train

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"icltrain/internal/fsx"
	"icltrain/internal/model"
)

// StateName is the latest-state checkpoint filename inside a run directory.
// The name is part of the on-disk contract; resuming processes look it up
// by this exact name.
const StateName = "state.pt"

// TrainingState is the full resumable state: the index of the last
// completed optimization step plus opaque model and optimizer snapshots.
// The curriculum position is deliberately absent — it is reconstructed by
// replay, never persisted.
type TrainingState struct {
	TrainStep      int             `json:"train_step"`
	ModelState     model.StateDict `json:"model_state_dict"`
	OptimizerState model.StateDict `json:"optimizer_state_dict"`
}

func (s TrainingState) Validate() error {
	var errs []error
	if s.TrainStep < 0 {
		errs = append(errs, errors.New("train_step must be >= 0"))
	}
	if s.ModelState == nil {
		errs = append(errs, errors.New("model_state_dict is required"))
	}
	if s.OptimizerState == nil {
		errs = append(errs, errors.New("optimizer_state_dict is required"))
	}
	return errors.Join(errs...)
}

// LoadResult is the tagged outcome of a checkpoint load: either no prior
// state exists (Restored is false) or State holds a fully valid snapshot.
// File-existence is never used as implicit control flow by callers.
type LoadResult struct {
	Restored bool
	State    TrainingState
}

// SaveState writes the latest-state checkpoint atomically, unconditionally
// overwriting the previous one. A concurrently starting resume process
// observes either the old or the new complete state, never a torn write.
func SaveState(dir string, st TrainingState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid training state: %w", err)
	}
	b, err := sonic.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal training state: %w", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, StateName), b, 0o644); err != nil {
		return fmt.Errorf("write training state: %w", err)
	}
	return nil
}

// LoadState returns the checkpoint in dir if one exists. A missing file is
// a fresh start; an existing file that fails to deserialize or validate is
// ErrCorruptCheckpoint, which is fatal.
func LoadState(dir string) (LoadResult, error) {
	path := filepath.Join(dir, StateName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadResult{Restored: false}, nil
		}
		return LoadResult{}, fmt.Errorf("read training state: %w", err)
	}
	var st TrainingState
	if err := sonic.Unmarshal(raw, &st); err != nil {
		return LoadResult{}, &CorruptCheckpointError{Path: path, Err: err}
	}
	if err := st.Validate(); err != nil {
		return LoadResult{}, &CorruptCheckpointError{Path: path, Err: err}
	}
	return LoadResult{Restored: true, State: st}, nil
}

// SnapshotName returns the immutable weights filename for a step.
func SnapshotName(step int) string {
	return fmt.Sprintf("model_%d.pt", step)
}

// Snapshot writes an immutable, step-named copy of the model weights.
// Distinct steps land in distinct files; an existing file is left untouched
// so that re-running a step after resume cannot rewrite history.
func Snapshot(dir string, step int, modelState model.StateDict) error {
	if step < 0 {
		return fmt.Errorf("snapshot step must be >= 0, got %d", step)
	}
	path := filepath.Join(dir, SnapshotName(step))
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	b, err := sonic.Marshal(modelState)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := fsx.WriteFileAtomic(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
