// Package config defines the statically validated run configuration.
//
// The configuration is plain typed data: every recognized option is a named
// field with a documented default, loaded from a YAML file, optionally
// overridden by ICLTRAIN_* environment variables for deploy-varying values,
// and validated before anything else runs. Nothing reads ambient global
// state afterwards.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"icltrain/internal/curriculum"
	"icltrain/internal/fsx"
)

// FrozenName is the filename of the configuration frozen into a run
// directory when the run starts.
const FrozenName = "config.yaml"

type Config struct {
	// OutDir is the parent directory under which each run gets its own
	// run-ID subdirectory.
	OutDir string `yaml:"out_dir"`

	Model    Model    `yaml:"model"`
	Training Training `yaml:"training"`
	Tracking Tracking `yaml:"tracking"`
	Storage  Storage  `yaml:"storage"`
	Log      Log      `yaml:"log"`
}

type Model struct {
	// Family selects the model collaborator. Recognized: "linear".
	Family string `yaml:"family"`
	// NDims is the full input dimensionality the model is built for.
	NDims int `yaml:"n_dims"`
}

type Training struct {
	TrainSteps   int     `yaml:"train_steps"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`

	// SaveEverySteps is the latest-state checkpoint cadence.
	SaveEverySteps int `yaml:"save_every_steps"`
	// KeepEverySteps is the immutable snapshot cadence; 0 disables
	// snapshots entirely.
	KeepEverySteps int `yaml:"keep_every_steps"`

	// NumTasks bounds the task pool; 0 means unbounded.
	NumTasks int `yaml:"num_tasks"`
	// NumTrainingExamples bounds the synthetic example pool; 0 means
	// unbounded (no seed sets drawn).
	NumTrainingExamples int `yaml:"num_training_examples"`

	// Seed is the root of all per-step randomness.
	Seed int64 `yaml:"seed"`

	// Task and Data select the sampler collaborators. Recognized:
	// task "linear_regression", data "gaussian".
	Task string `yaml:"task"`
	Data string `yaml:"data"`

	Curriculum curriculum.Schedule `yaml:"curriculum"`
}

type Tracking struct {
	// Backend selects the experiment-tracking sink: "none", "file", or
	// "redis".
	Backend string `yaml:"backend"`
	// LogEverySteps is the sink emission cadence.
	LogEverySteps int `yaml:"log_every_steps"`
	// RedisURL configures the redis backend (ICLTRAIN_REDIS_URL overrides).
	RedisURL string `yaml:"redis_url"`
}

type Storage struct {
	// MirrorDir, when set, receives a copy of every run artifact at
	// finalize (ICLTRAIN_MIRROR_DIR overrides). Empty disables mirroring.
	MirrorDir string `yaml:"mirror_dir"`
}

type Log struct {
	// Level is a zerolog level name. Default "info"
	// (ICLTRAIN_LOG_LEVEL overrides).
	Level string `yaml:"level"`
	// Format is "json" or "console". Default "console".
	Format string `yaml:"format"`
}

// envOverrides are the deploy-varying fields that may come from the
// environment instead of the config file.
type envOverrides struct {
	RedisURL  string `envconfig:"REDIS_URL"`
	MirrorDir string `envconfig:"MIRROR_DIR"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
}

// Load reads, defaults, env-overrides, and validates a config file.
// Unknown YAML keys are errors: a typo must not silently become a default.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	var env envOverrides
	if err := envconfig.Process("icltrain", &env); err != nil {
		return Config{}, fmt.Errorf("process environment overrides: %w", err)
	}
	if env.RedisURL != "" {
		cfg.Tracking.RedisURL = env.RedisURL
	}
	if env.MirrorDir != "" {
		cfg.Storage.MirrorDir = env.MirrorDir
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model.Family == "" {
		c.Model.Family = "linear"
	}
	if c.Training.Task == "" {
		c.Training.Task = "linear_regression"
	}
	if c.Training.Data == "" {
		c.Training.Data = "gaussian"
	}
	if c.Training.SaveEverySteps == 0 {
		c.Training.SaveEverySteps = 1000
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = 1e-3
	}
	if c.Tracking.Backend == "" {
		c.Tracking.Backend = "none"
	}
	if c.Tracking.LogEverySteps == 0 {
		c.Tracking.LogEverySteps = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks every recognized option. All violations are reported
// together.
func (c Config) Validate() error {
	var errs []error
	if c.OutDir == "" {
		errs = append(errs, errors.New("out_dir is required"))
	}
	if c.Model.Family != "linear" {
		errs = append(errs, fmt.Errorf("model.family %q is not recognized (expected \"linear\")", c.Model.Family))
	}
	if c.Model.NDims < 1 {
		errs = append(errs, errors.New("model.n_dims must be >= 1"))
	}
	if c.Training.TrainSteps < 1 {
		errs = append(errs, errors.New("training.train_steps must be >= 1"))
	}
	if c.Training.BatchSize < 1 {
		errs = append(errs, errors.New("training.batch_size must be >= 1"))
	}
	if c.Training.LearningRate <= 0 {
		errs = append(errs, errors.New("training.learning_rate must be > 0"))
	}
	if c.Training.SaveEverySteps < 1 {
		errs = append(errs, errors.New("training.save_every_steps must be >= 1"))
	}
	if c.Training.KeepEverySteps < 0 {
		errs = append(errs, errors.New("training.keep_every_steps must be >= 0"))
	}
	if c.Training.NumTasks < 0 {
		errs = append(errs, errors.New("training.num_tasks must be >= 0"))
	}
	if c.Training.NumTrainingExamples < 0 {
		errs = append(errs, errors.New("training.num_training_examples must be >= 0"))
	}
	if c.Training.NumTrainingExamples > 0 && c.Training.NumTrainingExamples < c.Training.BatchSize {
		errs = append(errs, errors.New("training.num_training_examples must be >= training.batch_size"))
	}
	if c.Training.Task != "linear_regression" {
		errs = append(errs, fmt.Errorf("training.task %q is not recognized (expected \"linear_regression\")", c.Training.Task))
	}
	if c.Training.Data != "gaussian" {
		errs = append(errs, fmt.Errorf("training.data %q is not recognized (expected \"gaussian\")", c.Training.Data))
	}
	if err := c.Training.Curriculum.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("training.curriculum: %w", err))
	}
	if c.Training.Curriculum.Dims.End > c.Model.NDims {
		errs = append(errs, fmt.Errorf("training.curriculum.dims.end (%d) must be <= model.n_dims (%d)",
			c.Training.Curriculum.Dims.End, c.Model.NDims))
	}
	switch c.Tracking.Backend {
	case "none", "file":
	case "redis":
		if c.Tracking.RedisURL == "" {
			errs = append(errs, errors.New("tracking.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracking.backend %q is not recognized (expected none|file|redis)", c.Tracking.Backend))
	}
	if c.Tracking.LogEverySteps < 1 {
		errs = append(errs, errors.New("tracking.log_every_steps must be >= 1"))
	}
	return errors.Join(errs...)
}

// Hash is the deterministic identity of a configuration: the SHA-256 of
// its canonical YAML rendering. Resume refuses a run directory whose frozen
// config hash differs from the current invocation's.
func (c Config) Hash() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Freeze writes the fully-resolved configuration into dir atomically.
func (c Config) Freeze(dir string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return fsx.WriteFileAtomic(filepath.Join(dir, FrozenName), b, 0o644)
}
