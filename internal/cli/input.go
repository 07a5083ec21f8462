package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitTrainingFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the canonicalized description of one training invocation.
//
// Flags are the only input surface here; the environment is consulted only
// through the config layer's documented ICLTRAIN_* overrides.
type Invocation struct {
	// ConfigPath locates the YAML configuration. Required.
	ConfigPath string

	// OutDir overrides the config's out_dir when non-empty.
	OutDir string

	// RunID resumes an existing run directory; empty means a fresh run
	// under a new UUID.
	RunID string

	// DryRun runs a short validation pass: curriculum pinned to its
	// terminal plateau, steps capped, no durable side effects, no sinks.
	DryRun bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into a canonical Invocation.
func ParseInvocation(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("icltrain", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var inv Invocation
	fs.StringVar(&inv.ConfigPath, "config", "", "Path to the run configuration YAML. Required.")
	fs.StringVar(&inv.OutDir, "out-dir", "", "Override the configured output directory (optional).")
	fs.StringVar(&inv.RunID, "run-id", "", "Resume an existing run directory (optional).")
	fs.BoolVar(&inv.DryRun, "dry-run", false, "Validation run: no durable side effects, capped steps.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if inv.ConfigPath == "" {
		return Invocation{}, invalidInvocationf("--config is required")
	}
	inv.ConfigPath = filepath.Clean(inv.ConfigPath)
	if inv.OutDir != "" {
		inv.OutDir = filepath.Clean(inv.OutDir)
	}
	// Run IDs become directory names; reject anything path-like.
	if strings.ContainsAny(inv.RunID, `/\`) {
		return Invocation{}, invalidInvocationf("--run-id must be a bare identifier, got %q", inv.RunID)
	}

	return inv, nil
}

// ExitCodeFor extracts a semantic exit code from a ParseInvocation error.
func ExitCodeFor(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
