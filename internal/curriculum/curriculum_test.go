package curriculum

import "testing"

func stairSchedule() Schedule {
	return Schedule{
		Dims:   Axis{Start: 2, End: 10, Increment: 2, Interval: 5},
		Points: Axis{Start: 2, End: 10, Increment: 2, Interval: 5},
	}
}

func TestStaircase_MonotoneAndClamp(t *testing.T) {
	cases := []struct {
		step int
		want int
	}{
		{0, 2},
		{4, 2},
		{5, 4},
		{9, 4},
		{10, 6},
		{20, 10},
		{25, 10},
		{1000, 10}, // terminal plateau, never exceeds end
	}

	c, err := New(stairSchedule())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	step := 0
	for _, tc := range cases {
		for step < tc.step {
			c.Advance()
			step++
		}
		pos := c.Position()
		if pos.NDimsTruncated != tc.want {
			t.Fatalf("step %d: dims = %d, want %d", tc.step, pos.NDimsTruncated, tc.want)
		}
		if pos.NPoints != tc.want {
			t.Fatalf("step %d: points = %d, want %d", tc.step, pos.NPoints, tc.want)
		}
	}
}

func TestStaircase_OvershootClampsToEnd(t *testing.T) {
	// end is not a multiple of the increment from start; the last rise
	// overshoots and must clamp, then plateau.
	c, err := New(Schedule{
		Dims:   Axis{Start: 1, End: 4, Increment: 3, Interval: 2},
		Points: Axis{Start: 1, End: 10, Increment: 1, Interval: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{1, 1, 4, 4, 4, 4, 4}
	for step, w := range want {
		if got := c.Position().NDimsTruncated; got != w {
			t.Fatalf("step %d: dims = %d, want %d", step, got, w)
		}
		c.Advance()
	}
}

func TestReplay_MatchesIncrementalAdvances(t *testing.T) {
	schedules := []Schedule{
		stairSchedule(),
		{
			Dims:   Axis{Start: 1, End: 1, Increment: 1, Interval: 1},
			Points: Axis{Start: 3, End: 41, Increment: 4, Interval: 7},
		},
		{
			Dims:   Axis{Start: 5, End: 20, Increment: 1, Interval: 2000},
			Points: Axis{Start: 2, End: 101, Increment: 2, Interval: 1},
		},
	}
	steps := []int{0, 1, 7, 25, 50, 999}

	for si, s := range schedules {
		for _, n := range steps {
			// Original execution: advances interleaved with position reads
			// and unrelated operations.
			orig, err := New(s)
			if err != nil {
				t.Fatalf("schedule %d: %v", si, err)
			}
			for i := 0; i < n; i++ {
				_ = orig.Position()
				_ = orig.Step()
				orig.Advance()
				_ = orig.Position()
			}

			// Resume reconstruction: a fresh curriculum replayed n times.
			replayed, err := New(s)
			if err != nil {
				t.Fatalf("schedule %d: %v", si, err)
			}
			replayed.Replay(n)

			if orig.Position() != replayed.Position() {
				t.Fatalf("schedule %d after %d advances: original %+v, replayed %+v",
					si, n, orig.Position(), replayed.Position())
			}
		}
	}
}

func TestSchedule_Validate(t *testing.T) {
	cases := []struct {
		name string
		axis Axis
		ok   bool
	}{
		{"valid", Axis{Start: 2, End: 10, Increment: 2, Interval: 5}, true},
		{"flat", Axis{Start: 3, End: 3, Increment: 1, Interval: 1}, true},
		{"start above end", Axis{Start: 11, End: 10, Increment: 2, Interval: 5}, false},
		{"zero start", Axis{Start: 0, End: 10, Increment: 2, Interval: 5}, false},
		{"zero increment", Axis{Start: 2, End: 10, Increment: 0, Interval: 5}, false},
		{"zero interval", Axis{Start: 2, End: 10, Increment: 2, Interval: 0}, false},
	}
	for _, tc := range cases {
		err := tc.axis.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSchedule_Terminal(t *testing.T) {
	term := stairSchedule().Terminal()
	c, err := New(term)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos := c.Position(); pos.NDimsTruncated != 10 || pos.NPoints != 10 {
		t.Fatalf("terminal schedule starts at %+v, want end values", pos)
	}
	c.Advance()
	if pos := c.Position(); pos.NDimsTruncated != 10 || pos.NPoints != 10 {
		t.Fatalf("terminal schedule moved to %+v", pos)
	}
}
