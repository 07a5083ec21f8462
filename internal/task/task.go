// Package task defines the synthetic in-context-learning tasks the loop
// trains against, at the interface boundary the training core consumes:
// a task evaluates inputs into targets and supplies its own training loss
// and per-position metric.
package task

import (
	"math/rand"

	"icltrain/internal/sampler"
)

// LossFunc computes the scalar training loss for a batch of predictions and
// the gradient of that loss with respect to the predictions. Both output
// and targets are [batch][position].
type LossFunc func(output, targets [][]float64) (loss float64, grad [][]float64)

// MetricFunc computes an elementwise evaluation metric, [batch][position].
type MetricFunc func(output, targets [][]float64) [][]float64

// Task is one sampled problem instance for a whole batch.
type Task interface {
	// Evaluate maps inputs xs[b][p][d] to targets ys[b][p].
	Evaluate(xs [][][]float64) [][]float64
	// TrainingMetric returns the loss used for the optimization step.
	TrainingMetric() LossFunc
	// Metric returns the elementwise metric used for per-position logging.
	Metric() MetricFunc
}

// Sampler draws a Task for the next step. seeds, when non-nil, pins task
// identity per batch element; rng drives unseeded draws.
type Sampler interface {
	Sample(rng *rand.Rand, seeds sampler.SeedSet) Task
}
