package train

import "fmt"

// Phase is the TrainingLoop lifecycle state.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseRestoring    Phase = "RESTORING"
	PhaseRunning      Phase = "RUNNING"
	PhaseFinalizing   Phase = "FINALIZING"
	PhaseDone         Phase = "DONE"
)

// The lifecycle is strictly linear; DONE is terminal with no re-entry.
func isAllowedTransition(from, to Phase) bool {
	switch from {
	case PhaseInitializing:
		return to == PhaseRestoring
	case PhaseRestoring:
		return to == PhaseRunning
	case PhaseRunning:
		return to == PhaseFinalizing
	case PhaseFinalizing:
		return to == PhaseDone
	default:
		return false
	}
}

// transition performs a validated phase change. A disallowed transition is
// a programming error surfaced as an internal failure, never silently
// applied.
func (l *Loop) transition(to Phase) error {
	if !isAllowedTransition(l.phase, to) {
		return fmt.Errorf("disallowed loop transition: %s -> %s", l.phase, to)
	}
	l.phase = to
	return nil
}
