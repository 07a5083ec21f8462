package train

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"

	"icltrain/internal/config"
	"icltrain/internal/curriculum"
	"icltrain/internal/model"
	"icltrain/internal/plot"
	"icltrain/internal/sampler"
	"icltrain/internal/storage"
	"icltrain/internal/task"
	"icltrain/internal/track"
)

// LossCurveName is the summary plot filename inside a run directory.
const LossCurveName = "loss_curve.png"

// taskSeedOffset separates task identity from data identity: the task for
// batch element b is seeded by the element's data seed plus this offset.
const taskSeedOffset = 1

// Collaborators are the external learners and samplers the loop drives.
// The loop owns their call ordering, never their internals.
type Collaborators struct {
	Model     model.Model
	Optimizer model.Optimizer
	Data      *sampler.Gaussian
	Tasks     task.Sampler
}

// Loop is the top-level training driver: a linear state machine
// INITIALIZING -> RESTORING -> RUNNING -> FINALIZING -> DONE.
//
// Per RUNNING iteration the side-effect order is fixed: seed draw, data and
// task sampling, optimization step, metric recording, tracking emit,
// curriculum advance, then state save and snapshot. The persisted
// checkpoint therefore always corresponds to a fully completed step; the
// process may die at any instant without corrupting that invariant.
type Loop struct {
	cfg config.Config
	run RunContext
	col Collaborators

	cur   *curriculum.Curriculum
	exec  *StepExecutor
	agg   *Aggregator
	phase Phase
}

// New builds a loop over a validated configuration. Dry-run adjustments
// (terminal curriculum, capped steps) are the caller's responsibility; the
// loop only honors RunContext.DryRun for side-effect suppression.
func New(cfg config.Config, run RunContext, col Collaborators) (*Loop, error) {
	if col.Model == nil || col.Optimizer == nil || col.Data == nil || col.Tasks == nil {
		return nil, fmt.Errorf("all collaborators are required")
	}
	cur, err := curriculum.New(cfg.Training.Curriculum)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:   cfg,
		run:   run,
		col:   col,
		cur:   cur,
		exec:  &StepExecutor{Model: col.Model, Optimizer: col.Optimizer},
		agg:   NewAggregator(),
		phase: PhaseInitializing,
	}, nil
}

// Metrics exposes the buffered metrics log (for tests and post-run
// inspection).
func (l *Loop) Metrics() *Aggregator { return l.agg }

// Run drives the loop to DONE or to the first fatal error. Fatal errors
// leave the last saved checkpoint intact; a subsequent invocation against
// the same run directory resumes from it.
func (l *Loop) Run(ctx context.Context) error {
	start, err := l.restore()
	if err != nil {
		return err
	}
	if err := l.transition(PhaseRunning); err != nil {
		return err
	}

	for step := start; step < l.cfg.Training.TrainSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.runStep(ctx, step); err != nil {
			return err
		}
	}

	if err := l.transition(PhaseFinalizing); err != nil {
		return err
	}
	if err := l.finalize(ctx); err != nil {
		return err
	}
	return l.transition(PhaseDone)
}

// restore attempts a checkpoint load and replays the curriculum to the
// exact position it had when the checkpoint was taken. The saved step index
// is the last *completed* step and the curriculum advances after each
// completed step, so the replay count is TrainStep+1 and the loop resumes
// at step index TrainStep+1.
func (l *Loop) restore() (int, error) {
	if err := l.transition(PhaseRestoring); err != nil {
		return 0, err
	}
	if l.run.Dir == "" {
		return 0, nil
	}
	res, err := LoadState(l.run.Dir)
	if err != nil {
		return 0, err
	}
	if !res.Restored {
		l.run.Log.Info().Str("run_id", l.run.RunID).Msg("no prior state, starting fresh")
		return 0, nil
	}
	if err := l.col.Model.LoadStateDict(res.State.ModelState); err != nil {
		return 0, &CorruptCheckpointError{Path: filepath.Join(l.run.Dir, StateName), Err: err}
	}
	if err := l.col.Optimizer.LoadStateDict(res.State.OptimizerState); err != nil {
		return 0, &CorruptCheckpointError{Path: filepath.Join(l.run.Dir, StateName), Err: err}
	}
	l.cur.Replay(res.State.TrainStep + 1)
	if err := l.agg.Restore(l.run.Dir, res.State.TrainStep); err != nil {
		l.run.Log.Warn().Err(err).Msg("metrics history not restored")
	}
	l.run.Log.Info().
		Str("run_id", l.run.RunID).
		Int("train_step", res.State.TrainStep).
		Int("n_dims", l.cur.Position().NDimsTruncated).
		Int("n_points", l.cur.Position().NPoints).
		Msg("resumed from checkpoint")
	return res.State.TrainStep + 1, nil
}

func (l *Loop) runStep(ctx context.Context, step int) error {
	tr := l.cfg.Training
	rng := rand.New(rand.NewSource(stepSeed(tr.Seed, step)))
	pos := l.cur.Position()

	var seeds sampler.SeedSet
	if tr.NumTrainingExamples > 0 {
		var err error
		seeds, err = sampler.NewSeedSampler(rng).Sample(tr.NumTrainingExamples, tr.BatchSize)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}

	xs, err := l.col.Data.SampleXs(rng, pos.NPoints, tr.BatchSize, pos.NDimsTruncated, seeds)
	if err != nil {
		return fmt.Errorf("step %d: sample inputs: %w", step, err)
	}
	tk := l.col.Tasks.Sample(rng, seeds.Offset(taskSeedOffset))
	ys := tk.Evaluate(xs)

	loss, output, err := l.exec.RunStep(xs, ys, tk.TrainingMetric())
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	entry := l.agg.Record(step, loss, output, ys, tk.Metric(), pos)

	if step%l.cfg.Tracking.LogEverySteps == 0 {
		l.run.Log.Info().
			Int("step", step).
			Float64("loss", loss).
			Float64("excess_loss", entry.ExcessLoss).
			Int("n_dims", pos.NDimsTruncated).
			Int("n_points", pos.NPoints).
			Msg("train")
		if !l.run.DryRun {
			if terr := l.run.Tracker.Log(ctx, trackingPayload(entry)); terr != nil {
				l.run.Log.Warn().Err(terr).Int("step", step).Msg("tracking emit failed")
			}
		}
	}

	l.cur.Advance()

	if l.run.DryRun {
		return nil
	}
	if step%tr.SaveEverySteps == 0 {
		st := TrainingState{
			TrainStep:      step,
			ModelState:     l.col.Model.StateDict(),
			OptimizerState: l.col.Optimizer.StateDict(),
		}
		if err := SaveState(l.run.Dir, st); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}
	if tr.KeepEverySteps > 0 && step%tr.KeepEverySteps == 0 && step > 0 {
		if err := Snapshot(l.run.Dir, step, l.col.Model.StateDict()); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}
	return nil
}

// finalize flushes the metrics log, renders the loss curve, and mirrors the
// run directory. Only the metrics flush is load-bearing; plot and mirror
// failures are logged and do not fail the run.
func (l *Loop) finalize(ctx context.Context) error {
	defer func() {
		if err := l.run.Tracker.Close(); err != nil {
			l.run.Log.Warn().Err(err).Msg("tracking sink close failed")
		}
	}()
	if l.run.DryRun {
		return nil
	}

	if err := l.agg.Flush(l.run.Dir); err != nil {
		return err
	}

	entries := l.agg.Entries()
	steps := make([]int, len(entries))
	losses := make([]float64, len(entries))
	for i, e := range entries {
		steps[i] = e.Step
		losses[i] = e.Loss
	}
	if err := plot.LossCurve(filepath.Join(l.run.Dir, LossCurveName), steps, losses); err != nil {
		l.run.Log.Warn().Err(err).Msg("loss curve not rendered")
	}

	if l.run.Uploader != nil {
		if err := storage.MirrorDir(ctx, l.run.Uploader, l.run.Dir, "runs/"+l.run.RunID, l.run.Log); err != nil {
			l.run.Log.Warn().Err(err).Msg("artifact mirror incomplete")
		}
	}
	return nil
}

func trackingPayload(e LogEntry) track.Payload {
	return track.Payload{
		Step: e.Step,
		Scalars: map[string]float64{
			"overall_loss": e.Loss,
			"excess_loss":  e.ExcessLoss,
			"n_points":     float64(e.NPoints),
			"n_dims":       float64(e.NDims),
		},
		Series: map[string][]float64{
			"pointwise/loss": e.PointwiseLoss,
		},
	}
}

// stepSeed mixes the run seed with the step index (splitmix64 finalizer) so
// each step draws from an independent stream, and a resumed run reproduces
// the exact draws of an uninterrupted one.
func stepSeed(seed int64, step int) int64 {
	z := uint64(seed) + uint64(step)*0x9e3779b97f4a7c15
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z)
}
