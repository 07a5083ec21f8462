package train

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icltrain/internal/config"
	"icltrain/internal/curriculum"
	"icltrain/internal/model"
	"icltrain/internal/sampler"
	"icltrain/internal/task"
	"icltrain/internal/track"
)

func testConfig(outDir string, steps int) config.Config {
	return config.Config{
		OutDir: outDir,
		Model:  config.Model{Family: "linear", NDims: 5},
		Training: config.Training{
			TrainSteps:          steps,
			BatchSize:           4,
			LearningRate:        0.01,
			SaveEverySteps:      1,
			KeepEverySteps:      0,
			NumTrainingExamples: 16,
			Seed:                1234,
			Task:                "linear_regression",
			Data:                "gaussian",
			Curriculum: curriculum.Schedule{
				Dims:   curriculum.Axis{Start: 1, End: 5, Increment: 1, Interval: 10},
				Points: curriculum.Axis{Start: 2, End: 6, Increment: 2, Interval: 10},
			},
		},
		Tracking: config.Tracking{Backend: "none", LogEverySteps: 10},
		Log:      config.Log{Level: "info", Format: "json"},
	}
}

func testCollaborators(cfg config.Config) Collaborators {
	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	m := model.NewLinearPredictor(cfg.Model.NDims, rng)
	return Collaborators{
		Model:     m,
		Optimizer: model.NewAdam(m.Parameters(), cfg.Training.LearningRate),
		Data:      sampler.NewGaussian(cfg.Model.NDims),
		Tasks:     task.NewLinearRegression(cfg.Model.NDims, cfg.Training.BatchSize, cfg.Training.NumTasks, cfg.Training.Seed),
	}
}

func testRunContext(dir string) RunContext {
	return RunContext{
		RunID:   "test-run",
		Dir:     dir,
		Log:     zerolog.Nop(),
		Tracker: track.Noop{},
	}
}

func runLoop(t *testing.T, cfg config.Config, run RunContext) (*Loop, Collaborators) {
	t.Helper()
	col := testCollaborators(cfg)
	loop, err := New(cfg, run, col)
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))
	return loop, col
}

// Training 0..50 uninterrupted versus 0..25, restart, 25..50 must produce
// identical final parameters, optimizer state, and metrics history.
func TestLoop_ResumeEquivalence(t *testing.T) {
	full := t.TempDir()
	split := t.TempDir()

	cfgFull := testConfig(full, 50)
	_, colFull := runLoop(t, cfgFull, testRunContext(full))

	cfgHalf := testConfig(split, 25)
	runLoop(t, cfgHalf, testRunContext(split))

	cfgRest := testConfig(split, 50)
	loopRest, colRest := runLoop(t, cfgRest, testRunContext(split))

	assert.Equal(t, colFull.Model.StateDict(), colRest.Model.StateDict())
	assert.Equal(t, colFull.Optimizer.StateDict(), colRest.Optimizer.StateDict())

	// Both final checkpoints record the last completed step.
	resFull, err := LoadState(full)
	require.NoError(t, err)
	resSplit, err := LoadState(split)
	require.NoError(t, err)
	assert.Equal(t, 49, resFull.State.TrainStep)
	assert.Equal(t, resFull.State, resSplit.State)

	// Metrics history is continuous across the resume boundary.
	entries := loopRest.Metrics().Entries()
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, i, e.Step)
	}
}

func TestLoop_FreshRunProducesArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 6)
	cfg.Training.KeepEverySteps = 2

	loop, _ := runLoop(t, cfg, testRunContext(dir))

	for _, name := range []string{StateName, MetricsName, SnapshotName(2), SnapshotName(4)} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}
	// Snapshots are skipped at step 0.
	if _, err := os.Stat(filepath.Join(dir, SnapshotName(0))); !os.IsNotExist(err) {
		t.Fatalf("snapshot at step 0 must be skipped")
	}
	assert.Len(t, loop.Metrics().Entries(), 6)
}

func TestLoop_DryRunIsSideEffectFree(t *testing.T) {
	cfg := testConfig("", 5)
	run := RunContext{RunID: "dry", Dir: "", Log: zerolog.Nop(), Tracker: track.Noop{}, DryRun: true}
	loop, _ := runLoop(t, cfg, run)

	// Metrics are still recorded in memory for inspection.
	assert.Len(t, loop.Metrics().Entries(), 5)
}

type recordingSink struct {
	payloads []track.Payload
	fail     bool
}

func (s *recordingSink) Log(_ context.Context, p track.Payload) error {
	if s.fail {
		return &track.SinkUnavailableError{Sink: "test", Err: errors.New("broker down")}
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestLoop_TrackingCadenceAndPayload(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 7)
	cfg.Tracking.LogEverySteps = 3

	sink := &recordingSink{}
	run := testRunContext(dir)
	run.Tracker = sink
	col := testCollaborators(cfg)
	loop, err := New(cfg, run, col)
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))

	require.Len(t, sink.payloads, 3) // steps 0, 3, 6
	assert.Equal(t, 0, sink.payloads[0].Step)
	assert.Equal(t, 6, sink.payloads[2].Step)
	p := sink.payloads[1]
	assert.Contains(t, p.Scalars, "overall_loss")
	assert.Contains(t, p.Scalars, "excess_loss")
	assert.Contains(t, p.Series, "pointwise/loss")
}

func TestLoop_SinkFailureDoesNotAbortTraining(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 5)
	cfg.Tracking.LogEverySteps = 1

	run := testRunContext(dir)
	run.Tracker = &recordingSink{fail: true}
	col := testCollaborators(cfg)
	loop, err := New(cfg, run, col)
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))
	assert.Len(t, loop.Metrics().Entries(), 5)
}

// explodingModel delegates to a real predictor but poisons the forward
// output at a chosen call.
type explodingModel struct {
	inner  *model.LinearPredictor
	failAt int
	calls  int
}

func (m *explodingModel) Forward(xs [][][]float64) [][]float64 {
	out := m.inner.Forward(xs)
	if m.calls == m.failAt {
		out[0][0] = math.NaN()
	}
	m.calls++
	return out
}

func (m *explodingModel) Backward(grad [][]float64)              { m.inner.Backward(grad) }
func (m *explodingModel) Parameters() []*model.Param             { return m.inner.Parameters() }
func (m *explodingModel) StateDict() model.StateDict             { return m.inner.StateDict() }
func (m *explodingModel) LoadStateDict(sd model.StateDict) error { return m.inner.LoadStateDict(sd) }
func (m *explodingModel) NDims() int                             { return m.inner.NDims() }

func TestLoop_NonFiniteLossHaltsWithCheckpointIntact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 10)

	col := testCollaborators(cfg)
	inner := col.Model.(*model.LinearPredictor)
	col.Model = &explodingModel{inner: inner, failAt: 3}
	col.Optimizer = model.NewAdam(inner.Parameters(), cfg.Training.LearningRate)

	loop, err := New(cfg, testRunContext(dir), col)
	require.NoError(t, err)
	err = loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonFiniteLoss), "got %v", err)

	// Steps 0..2 completed and saved; the diverged step 3 must not have
	// touched the persisted state.
	res, lerr := LoadState(dir)
	require.NoError(t, lerr)
	require.True(t, res.Restored)
	assert.Equal(t, 2, res.State.TrainStep)
}

func TestLoop_CorruptCheckpointRefusesToRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateName), []byte("{broken"), 0o644))

	cfg := testConfig(dir, 5)
	loop, err := New(cfg, testRunContext(dir), testCollaborators(cfg))
	require.NoError(t, err)
	err = loop.Run(context.Background())
	assert.True(t, errors.Is(err, ErrCorruptCheckpoint), "got %v", err)
}

func TestLoop_ContextCancellationStopsBetweenSteps(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop, err := New(cfg, testRunContext(dir), testCollaborators(cfg))
	require.NoError(t, err)
	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
}

func TestPhase_TransitionsAreLinear(t *testing.T) {
	allowed := map[Phase]Phase{
		PhaseInitializing: PhaseRestoring,
		PhaseRestoring:    PhaseRunning,
		PhaseRunning:      PhaseFinalizing,
		PhaseFinalizing:   PhaseDone,
	}
	phases := []Phase{PhaseInitializing, PhaseRestoring, PhaseRunning, PhaseFinalizing, PhaseDone}
	for _, from := range phases {
		for _, to := range phases {
			want := allowed[from] == to && from != PhaseDone
			if got := isAllowedTransition(from, to); got != want {
				t.Fatalf("transition %s -> %s: allowed=%v, want %v", from, to, got, want)
			}
		}
	}
}
