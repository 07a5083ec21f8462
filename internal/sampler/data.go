package sampler

import (
	"fmt"
	"math/rand"
)

// Gaussian samples batches of in-context inputs with i.i.d. standard-normal
// coordinates.
//
// Inputs are laid out as xs[b][p][d]: batch element b, sequence position p,
// dimension d. All nDims dimensions are allocated, but coordinates at or
// beyond the curriculum's truncation are zero, so a model built for the
// full dimensionality sees easier problems early in training.
type Gaussian struct {
	nDims int
}

// NewGaussian creates a data sampler producing nDims-dimensional inputs.
func NewGaussian(nDims int) *Gaussian {
	return &Gaussian{nDims: nDims}
}

// NDims returns the full (untruncated) input dimensionality.
func (g *Gaussian) NDims() int { return g.nDims }

// SampleXs draws a batch of nPoints-long input sequences.
//
// When seeds is nil, all coordinates come from rng. When seeds is provided
// it must contain one seed per batch element; element b is then drawn from
// a generator seeded by seeds[b], making it one of a fixed pool of
// synthetic examples regardless of where in training it is requested.
//
// Truncation is a zero mask applied after full-width sampling, never a
// shortened draw: a seeded example keeps the same realized coordinates at
// every curriculum stage, with later stages merely unmasking more of them.
func (g *Gaussian) SampleXs(rng *rand.Rand, nPoints, batchSize, nDimsTruncated int, seeds SeedSet) ([][][]float64, error) {
	if nDimsTruncated < 0 || nDimsTruncated > g.nDims {
		return nil, fmt.Errorf("truncated dims %d out of range [0, %d]", nDimsTruncated, g.nDims)
	}
	if seeds != nil && len(seeds) != batchSize {
		return nil, fmt.Errorf("seed set size %d does not match batch size %d", len(seeds), batchSize)
	}

	xs := make([][][]float64, batchSize)
	for b := 0; b < batchSize; b++ {
		src := rng
		if seeds != nil {
			src = rand.New(rand.NewSource(int64(seeds[b])))
		}
		xs[b] = make([][]float64, nPoints)
		for p := 0; p < nPoints; p++ {
			row := make([]float64, g.nDims)
			for d := range row {
				row[d] = src.NormFloat64()
			}
			for d := nDimsTruncated; d < g.nDims; d++ {
				row[d] = 0
			}
			xs[b][p] = row
		}
	}
	return xs, nil
}
