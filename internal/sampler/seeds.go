// Package sampler provides the reproducibility primitives of the training
// loop: seed-set sampling over a bounded example pool and the Gaussian
// input sampler.
package sampler

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrInvalidSampleRequest is returned when a seed draw asks for more
// distinct seeds than the pool contains. This is a configuration error and
// is fatal to the run.
var ErrInvalidSampleRequest = errors.New("invalid sample request")

// InvalidSampleRequestError carries the offending sizes. It unwraps to
// ErrInvalidSampleRequest for errors.Is dispatch.
type InvalidSampleRequestError struct {
	PoolSize int
	Count    int
}

func (e *InvalidSampleRequestError) Error() string {
	return fmt.Sprintf("invalid sample request: count %d exceeds pool size %d", e.Count, e.PoolSize)
}

func (e *InvalidSampleRequestError) Unwrap() error { return ErrInvalidSampleRequest }

// SeedSet is a set of distinct integers in [0, poolSize). Element order
// carries no meaning; callers must not depend on it.
type SeedSet []int

// Offset returns a new SeedSet with delta added to every element. Task
// seeds are derived from data seeds this way so task identity stays
// correlated to, but distinguishable from, data identity.
func (s SeedSet) Offset(delta int) SeedSet {
	if s == nil {
		return nil
	}
	out := make(SeedSet, len(s))
	for i, v := range s {
		out[i] = v + delta
	}
	return out
}

// SeedSampler draws seed sets without replacement from a bounded pool.
//
// The randomness source is injected so tests (and resumed runs) can
// reproduce draws exactly; there is no hidden global state.
type SeedSampler struct {
	rng *rand.Rand
}

// NewSeedSampler creates a sampler backed by rng. rng must not be nil.
func NewSeedSampler(rng *rand.Rand) *SeedSampler {
	return &SeedSampler{rng: rng}
}

// Sample draws exactly count distinct integers uniformly from
// [0, poolSize). Fails with ErrInvalidSampleRequest when count > poolSize
// or either argument is non-positive.
func (s *SeedSampler) Sample(poolSize, count int) (SeedSet, error) {
	if count <= 0 || poolSize <= 0 || count > poolSize {
		return nil, &InvalidSampleRequestError{PoolSize: poolSize, Count: count}
	}
	seen := make(map[int]struct{}, count)
	out := make(SeedSet, 0, count)
	for len(out) < count {
		v := s.rng.Intn(poolSize)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
