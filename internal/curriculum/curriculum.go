// Package curriculum implements the monotone difficulty schedule that maps
// a training step count to a (problem dimensionality, sequence length) pair.
//
// The curriculum is a pure function of how many times Advance has been
// called. It is never persisted; a resumed run reconstructs the position by
// replaying Advance, so the mapping must depend on call count alone (no
// wall-clock, no interleaving effects).
package curriculum

import (
	"errors"
	"fmt"
)

// Axis describes one staircase: the value starts at Start and rises by
// Increment every Interval steps until it reaches End, where it stays.
type Axis struct {
	Start     int `yaml:"start"`
	End       int `yaml:"end"`
	Increment int `yaml:"inc"`
	Interval  int `yaml:"interval"`
}

// Validate checks the staircase invariants: start <= end, increment > 0,
// interval > 0. Start must be at least 1 because the excess-loss baseline
// divides by the sequence length and dimensionality derived from it.
func (a Axis) Validate() error {
	var errs []error
	if a.Start < 1 {
		errs = append(errs, errors.New("start must be >= 1"))
	}
	if a.Start > a.End {
		errs = append(errs, fmt.Errorf("start (%d) must be <= end (%d)", a.Start, a.End))
	}
	if a.Increment <= 0 {
		errs = append(errs, errors.New("inc must be > 0"))
	}
	if a.Interval <= 0 {
		errs = append(errs, errors.New("interval must be > 0"))
	}
	return errors.Join(errs...)
}

// valueAt computes the staircase value after step advances:
//
//	min(end, start + inc * floor(step/interval))
//
// Overshoot past End clamps to End (terminal plateau, not an error).
func (a Axis) valueAt(step int) int {
	v := a.Start + a.Increment*(step/a.Interval)
	if v > a.End {
		return a.End
	}
	return v
}

// Schedule holds the two independent staircases: input dimensionality
// ("dims") and in-context sequence length ("points").
type Schedule struct {
	Dims   Axis `yaml:"dims"`
	Points Axis `yaml:"points"`
}

func (s Schedule) Validate() error {
	if err := s.Dims.Validate(); err != nil {
		return fmt.Errorf("dims: %w", err)
	}
	if err := s.Points.Validate(); err != nil {
		return fmt.Errorf("points: %w", err)
	}
	return nil
}

// Terminal returns a copy of the schedule with both axes pinned to their
// end values. Used by dry-run to exercise the loop at full difficulty.
func (s Schedule) Terminal() Schedule {
	s.Dims.Start = s.Dims.End
	s.Points.Start = s.Points.End
	return s
}

// Position is the derived difficulty at a given step. It is plain data:
// recomputed, never stored.
type Position struct {
	NDimsTruncated int
	NPoints        int
}

// Curriculum is the monotone state machine over a Schedule.
//
// Replay property: calling Advance exactly n times on a fresh Curriculum
// yields the identical Position that existed after n advances during the
// original execution. Resume correctness depends on this.
type Curriculum struct {
	schedule Schedule
	step     int
	pos      Position
}

// New constructs a Curriculum at step 0 (both axes at their start values).
func New(s Schedule) (*Curriculum, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid curriculum schedule: %w", err)
	}
	c := &Curriculum{schedule: s}
	c.recompute()
	return c, nil
}

func (c *Curriculum) recompute() {
	c.pos = Position{
		NDimsTruncated: c.schedule.Dims.valueAt(c.step),
		NPoints:        c.schedule.Points.valueAt(c.step),
	}
}

// Advance moves the curriculum forward by one completed training step.
// Total over non-negative step counts; it cannot fail.
func (c *Curriculum) Advance() {
	c.step++
	c.recompute()
}

// Replay applies n advances, reconstructing the position a checkpointed run
// had after n completed steps.
func (c *Curriculum) Replay(n int) {
	for i := 0; i < n; i++ {
		c.Advance()
	}
}

// Position returns the current difficulty pair.
func (c *Curriculum) Position() Position { return c.pos }

// Step returns how many times Advance has been called.
func (c *Curriculum) Step() int { return c.step }
