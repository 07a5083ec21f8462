package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"icltrain/internal/curriculum"
	"icltrain/internal/fsx"
	"icltrain/internal/task"
)

// MetricsName is the flushed metrics log filename inside a run directory.
const MetricsName = "metrics.json"

// LogEntry is one step's metrics. Entries are appended once, immutable
// afterwards, and flushed to disk only at finalize.
type LogEntry struct {
	Step          int       `json:"step"`
	Loss          float64   `json:"loss"`
	ExcessLoss    float64   `json:"excess_loss"`
	PointwiseLoss []float64 `json:"pointwise_loss"`
	NPoints       int       `json:"n_points"`
	NDims         int       `json:"n_dims"`
}

// Baseline is the closed-form loss of a no-information predictor at a
// curriculum position: the average over sequence positions of
// max(n_dims_truncated - position, 0). Raw losses divided by it become a
// difficulty-invariant excess-loss signal.
func Baseline(pos curriculum.Position) float64 {
	var sum float64
	for p := 0; p < pos.NPoints; p++ {
		if d := pos.NDimsTruncated - p; d > 0 {
			sum += float64(d)
		}
	}
	return sum / float64(pos.NPoints)
}

// Aggregator buffers the step-indexed metrics log in memory. Record is its
// only mutation during RUNNING; persistence happens at flush points, not
// per step, to keep I/O out of the hot loop.
type Aggregator struct {
	entries []LogEntry
}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Record computes the per-position loss (metric averaged across the batch)
// and the excess loss, appends the entry, and returns it for tracking.
func (a *Aggregator) Record(step int, loss float64, output, targets [][]float64, metric task.MetricFunc, pos curriculum.Position) LogEntry {
	perElem := metric(output, targets)
	pointwise := make([]float64, pos.NPoints)
	if len(perElem) > 0 {
		for p := 0; p < pos.NPoints; p++ {
			var sum float64
			for b := range perElem {
				sum += perElem[b][p]
			}
			pointwise[p] = sum / float64(len(perElem))
		}
	}

	entry := LogEntry{
		Step:          step,
		Loss:          loss,
		ExcessLoss:    loss / Baseline(pos),
		PointwiseLoss: pointwise,
		NPoints:       pos.NPoints,
		NDims:         pos.NDimsTruncated,
	}
	a.entries = append(a.entries, entry)
	return entry
}

// Entries returns the buffered log. Callers must not mutate it.
func (a *Aggregator) Entries() []LogEntry { return a.entries }

// Restore seeds the buffer from a previously flushed metrics log, dropping
// entries past lastStep so a resumed run re-records them exactly once.
// A missing file is an empty history.
func (a *Aggregator) Restore(dir string, lastStep int) error {
	raw, err := os.ReadFile(filepath.Join(dir, MetricsName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read metrics log: %w", err)
	}
	var entries []LogEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse metrics log: %w", err)
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Step <= lastStep {
			kept = append(kept, e)
		}
	}
	a.entries = kept
	return nil
}

// Flush writes the full buffered history to dir atomically.
func (a *Aggregator) Flush(dir string) error {
	entries := a.entries
	if entries == nil {
		entries = []LogEntry{}
	}
	b, err := sonic.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics log: %w", err)
	}
	if err := fsx.WriteFileAtomic(filepath.Join(dir, MetricsName), b, 0o644); err != nil {
		return fmt.Errorf("write metrics log: %w", err)
	}
	return nil
}
