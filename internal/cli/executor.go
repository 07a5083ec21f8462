package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"icltrain/internal/config"
	"icltrain/internal/fsx"
	"icltrain/internal/logging"
	"icltrain/internal/model"
	"icltrain/internal/sampler"
	"icltrain/internal/storage"
	"icltrain/internal/task"
	"icltrain/internal/track"
	"icltrain/internal/train"
)

// dryRunMaxSteps caps a dry-run so it exercises the loop without a real
// training budget.
const dryRunMaxSteps = 100

type Result struct {
	ExitCode int
}

// Execute maps a canonical Invocation to a full training run.
//
// Responsibilities:
//   - Resolve configuration (file, env overrides, dry-run adjustments).
//   - Prepare or re-attach the run directory, guarding resume against a
//     changed configuration.
//   - Wire the collaborators and sinks, run the loop, and translate the
//     outcome to a semantic exit code.
func Execute(ctx context.Context, inv Invocation) (res Result, execErr error) {
	res.ExitCode = ExitInternalError

	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	if inv.OutDir != "" {
		cfg.OutDir = inv.OutDir
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	if inv.DryRun {
		cfg.Training.Curriculum = cfg.Training.Curriculum.Terminal()
		if cfg.Training.TrainSteps > dryRunMaxSteps {
			cfg.Training.TrainSteps = dryRunMaxSteps
		}
	}

	runID := inv.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	runDir := ""
	if !inv.DryRun {
		runDir = filepath.Join(cfg.OutDir, runID)
		if err := prepareRunDir(cfg, runID, runDir); err != nil {
			res.ExitCode = ExitConfigError
			return res, err
		}
	}

	run := train.RunContext{
		RunID:    runID,
		Dir:      runDir,
		Log:      log.With().Str("run_id", runID).Logger(),
		Tracker:  buildTracker(ctx, cfg, inv.DryRun, runID, runDir, log),
		Uploader: buildUploader(cfg, inv.DryRun, log),
		DryRun:   inv.DryRun,
	}
	run.Log.Info().
		Bool("dry_run", inv.DryRun).
		Int("train_steps", cfg.Training.TrainSteps).
		Msg("starting training")

	loop, err := train.New(cfg, run, buildCollaborators(cfg))
	if err != nil {
		res.ExitCode = ExitInternalError
		return res, err
	}

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("panic: %v", r)
			recordFailure(runDir, "Panic", execErr, run.Log)
		}
	}()

	if err := loop.Run(ctx); err != nil {
		res.ExitCode, execErr = classifyRunError(err)
		recordFailure(runDir, failureCode(res.ExitCode, err), err, run.Log)
		return res, execErr
	}

	run.Log.Info().Msg("training complete")
	res.ExitCode = ExitSuccess
	return res, nil
}

// prepareRunDir creates or re-attaches the run directory. A fresh directory
// gets the frozen config and run metadata; an existing one is accepted only
// when its frozen config hash matches the current invocation, so a resumed
// run cannot silently continue under a different schedule.
func prepareRunDir(cfg config.Config, runID, runDir string) error {
	if err := fsx.EnsureDir(runDir, 0o755); err != nil {
		return fmt.Errorf("prepare run dir: %w", err)
	}
	hash, err := cfg.Hash()
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}
	meta, ok, err := train.LoadRunMeta(runDir)
	if err != nil {
		return err
	}
	if ok {
		if meta.ConfigHash != hash {
			return fmt.Errorf("run %s was started with a different configuration (frozen hash %s, current %s)",
				runID, meta.ConfigHash, hash)
		}
		return nil
	}
	if err := cfg.Freeze(runDir); err != nil {
		return err
	}
	return train.SaveRunMeta(runDir, train.NewRunMeta(runID, hash))
}

func buildCollaborators(cfg config.Config) train.Collaborators {
	// Families and task/data kinds are validated by config.Load; only the
	// recognized implementations appear here.
	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	m := model.NewLinearPredictor(cfg.Model.NDims, rng)
	return train.Collaborators{
		Model:     m,
		Optimizer: model.NewAdam(m.Parameters(), cfg.Training.LearningRate),
		Data:      sampler.NewGaussian(cfg.Model.NDims),
		Tasks: task.NewLinearRegression(
			cfg.Model.NDims,
			cfg.Training.BatchSize,
			cfg.Training.NumTasks,
			cfg.Training.Seed,
		),
	}
}

// buildTracker returns the configured sink, falling back to the noop sink
// when construction fails: tracking is best-effort and must not block a
// run from starting.
func buildTracker(ctx context.Context, cfg config.Config, dryRun bool, runID, runDir string, log zerolog.Logger) track.Sink {
	if dryRun {
		return track.Noop{}
	}
	switch cfg.Tracking.Backend {
	case "file":
		s, err := track.NewFile(filepath.Join(runDir, "track.jsonl"))
		if err != nil {
			log.Warn().Err(err).Msg("file tracking sink unavailable")
			return track.Noop{}
		}
		return s
	case "redis":
		s, err := track.NewRedis(ctx, cfg.Tracking.RedisURL, runID)
		if err != nil {
			log.Warn().Err(err).Msg("redis tracking sink unavailable")
			return track.Noop{}
		}
		return s
	default:
		return track.Noop{}
	}
}

func buildUploader(cfg config.Config, dryRun bool, log zerolog.Logger) storage.Uploader {
	if dryRun || cfg.Storage.MirrorDir == "" {
		return nil
	}
	u, err := storage.NewDir(cfg.Storage.MirrorDir)
	if err != nil {
		log.Warn().Err(err).Msg("artifact mirror unavailable")
		return nil
	}
	return u
}

func classifyRunError(err error) (int, error) {
	switch {
	case errors.Is(err, train.ErrCorruptCheckpoint):
		return ExitConfigError, err
	case errors.Is(err, train.ErrNonFiniteLoss),
		errors.Is(err, sampler.ErrInvalidSampleRequest):
		return ExitTrainingFailure, err
	default:
		return ExitInternalError, err
	}
}

func failureCode(exitCode int, err error) string {
	switch {
	case errors.Is(err, train.ErrCorruptCheckpoint):
		return "CorruptCheckpoint"
	case errors.Is(err, train.ErrNonFiniteLoss):
		return "NonFiniteLoss"
	case errors.Is(err, sampler.ErrInvalidSampleRequest):
		return "InvalidSampleRequest"
	case exitCode == ExitInternalError:
		return "Internal"
	default:
		return "TrainingFailure"
	}
}

// recordFailure leaves a failure.json in the run directory so a later
// resume (human or automated) can see why the previous attempt died. Purely
// diagnostic; errors here are swallowed after logging.
func recordFailure(runDir, code string, failure error, log zerolog.Logger) {
	if runDir == "" || failure == nil {
		return
	}
	record := struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}{ErrorCode: code, ErrorMessage: failure.Error()}
	b, err := sonic.MarshalIndent(record, "", "  ")
	if err == nil {
		err = fsx.WriteFileAtomic(filepath.Join(runDir, "failure.json"), b, 0o644)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failure record not written")
	}
}
