package train

import (
	"github.com/rs/zerolog"

	"icltrain/internal/storage"
	"icltrain/internal/track"
)

// RunContext carries everything a component needs to observe or persist a
// run. It is passed explicitly; no component reads ambient global state.
type RunContext struct {
	// RunID identifies the run; Dir is its exclusive artifact directory.
	// Dir is empty in dry-run, where no durable artifact exists.
	RunID string
	Dir   string

	Log zerolog.Logger

	// Tracker receives per-step metrics best-effort.
	Tracker track.Sink

	// Uploader, when non-nil, mirrors run artifacts at finalize.
	Uploader storage.Uploader

	// DryRun disables every durable side effect and external sink.
	DryRun bool
}
