// Package track provides best-effort experiment-tracking sinks. A sink
// failure must never abort training: callers log it and continue.
package track

import (
	"context"
	"fmt"
)

// Payload is one step's worth of tracking data: named scalars plus named
// per-position series.
type Payload struct {
	Step    int                  `json:"step"`
	Scalars map[string]float64   `json:"scalars"`
	Series  map[string][]float64 `json:"series,omitempty"`
}

// Sink accepts per-step payloads. Implementations must be safe to call
// from the single training goroutine; they need not be concurrency-safe.
type Sink interface {
	Log(ctx context.Context, p Payload) error
	Close() error
}

// SinkUnavailableError marks a recoverable tracking failure.
type SinkUnavailableError struct {
	Sink string
	Err  error
}

func (e *SinkUnavailableError) Error() string {
	return fmt.Sprintf("tracking sink %q unavailable: %v", e.Sink, e.Err)
}

func (e *SinkUnavailableError) Unwrap() error { return e.Err }

// Noop discards everything. Used by dry-run.
type Noop struct{}

func (Noop) Log(context.Context, Payload) error { return nil }
func (Noop) Close() error                       { return nil }
