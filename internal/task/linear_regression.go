package task

import (
	"math/rand"

	"icltrain/internal/sampler"
)

// LinearRegressionSampler draws batches of random linear-regression tasks:
// each batch element gets a weight vector w and targets y = <w, x>.
//
// With NumTasks > 0 the weight vectors come from a fixed pool pre-generated
// from poolSeed, so the run trains against a bounded task family; seed sets
// then index into that pool deterministically.
type LinearRegressionSampler struct {
	nDims     int
	batchSize int
	pool      [][]float64
}

// NewLinearRegression constructs the sampler. numTasks == 0 means an
// unbounded task family (a fresh weight vector per draw).
func NewLinearRegression(nDims, batchSize, numTasks int, poolSeed int64) *LinearRegressionSampler {
	s := &LinearRegressionSampler{nDims: nDims, batchSize: batchSize}
	if numTasks > 0 {
		src := rand.New(rand.NewSource(poolSeed))
		s.pool = make([][]float64, numTasks)
		for i := range s.pool {
			s.pool[i] = randomWeights(src, nDims)
		}
	}
	return s
}

func randomWeights(src *rand.Rand, nDims int) []float64 {
	w := make([]float64, nDims)
	for d := range w {
		w[d] = src.NormFloat64()
	}
	return w
}

// Sample picks one weight vector per batch element.
//
// Seeded draws are stable across resume boundaries: seeds[b] alone decides
// the weights for element b (pool index when a pool exists, generator seed
// otherwise), independent of rng.
func (s *LinearRegressionSampler) Sample(rng *rand.Rand, seeds sampler.SeedSet) Task {
	ws := make([][]float64, s.batchSize)
	for b := 0; b < s.batchSize; b++ {
		switch {
		case seeds != nil && s.pool != nil:
			ws[b] = s.pool[seeds[b]%len(s.pool)]
		case seeds != nil:
			ws[b] = randomWeights(rand.New(rand.NewSource(int64(seeds[b]))), s.nDims)
		case s.pool != nil:
			ws[b] = s.pool[rng.Intn(len(s.pool))]
		default:
			ws[b] = randomWeights(rng, s.nDims)
		}
	}
	return &linearRegression{ws: ws}
}

type linearRegression struct {
	ws [][]float64
}

func (t *linearRegression) Evaluate(xs [][][]float64) [][]float64 {
	ys := make([][]float64, len(xs))
	for b := range xs {
		ys[b] = make([]float64, len(xs[b]))
		for p := range xs[b] {
			var dot float64
			for d, x := range xs[b][p] {
				dot += t.ws[b][d] * x
			}
			ys[b][p] = dot
		}
	}
	return ys
}

// TrainingMetric is mean squared error over every batch element and
// position, with its analytic gradient.
func (t *linearRegression) TrainingMetric() LossFunc {
	return func(output, targets [][]float64) (float64, [][]float64) {
		grad := make([][]float64, len(output))
		var sum float64
		var n int
		for b := range output {
			grad[b] = make([]float64, len(output[b]))
			for p := range output[b] {
				diff := output[b][p] - targets[b][p]
				sum += diff * diff
				grad[b][p] = diff
				n++
			}
		}
		if n == 0 {
			return 0, grad
		}
		inv := 1.0 / float64(n)
		for b := range grad {
			for p := range grad[b] {
				grad[b][p] *= 2 * inv
			}
		}
		return sum * inv, grad
	}
}

// Metric is the elementwise squared error, averaged over the batch by the
// metrics layer to yield one value per sequence position.
func (t *linearRegression) Metric() MetricFunc {
	return func(output, targets [][]float64) [][]float64 {
		out := make([][]float64, len(output))
		for b := range output {
			out[b] = make([]float64, len(output[b]))
			for p := range output[b] {
				diff := output[b][p] - targets[b][p]
				out[b][p] = diff * diff
			}
		}
		return out
	}
}
