package train

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/cpuid/v2"

	"icltrain/internal/fsx"
)

// RunMetaName is the run metadata filename inside a run directory.
const RunMetaName = "run.json"

// RunMeta records the identity of a run: who it is, which configuration it
// was started with, and the host it ran on. The config hash guards resume —
// continuing a run directory under a different configuration would produce
// a model trained on an incoherent mixture of schedules.
type RunMeta struct {
	RunID        string    `json:"run_id"`
	ConfigHash   string    `json:"config_hash"`
	StartTime    time.Time `json:"start_time"`
	CPU          string    `json:"cpu"`
	LogicalCores int       `json:"logical_cores"`
}

// NewRunMeta stamps the current host and time.
func NewRunMeta(runID, configHash string) RunMeta {
	return RunMeta{
		RunID:        runID,
		ConfigHash:   configHash,
		StartTime:    time.Now().UTC(),
		CPU:          cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
	}
}

func (m RunMeta) Validate() error {
	var errs []error
	if m.RunID == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if m.ConfigHash == "" {
		errs = append(errs, errors.New("config_hash is required"))
	}
	if m.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	return errors.Join(errs...)
}

// SaveRunMeta writes the metadata record atomically.
func SaveRunMeta(dir string, m RunMeta) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid run metadata: %w", err)
	}
	b, err := sonic.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, RunMetaName), b, 0o644); err != nil {
		return fmt.Errorf("write run metadata: %w", err)
	}
	return nil
}

// LoadRunMeta reads the metadata record; ok is false when none exists.
func LoadRunMeta(dir string) (meta RunMeta, ok bool, err error) {
	raw, err := os.ReadFile(filepath.Join(dir, RunMetaName))
	if err != nil {
		if os.IsNotExist(err) {
			return RunMeta{}, false, nil
		}
		return RunMeta{}, false, fmt.Errorf("read run metadata: %w", err)
	}
	if err := sonic.Unmarshal(raw, &meta); err != nil {
		return RunMeta{}, false, fmt.Errorf("parse run metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return RunMeta{}, false, fmt.Errorf("invalid run metadata on disk: %w", err)
	}
	return meta, true, nil
}
