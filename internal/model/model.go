// Package model defines the learner collaborators of the training loop —
// the model and optimizer interfaces the StepExecutor drives — plus
// reference implementations with analytic gradients.
//
// Gradients are computed in closed form rather than through an autodiff
// engine so that checkpoint round-trips and resumed runs are bit-for-bit
// reproducible.
package model

import (
	"fmt"
	"math/rand"
)

// Param is one named parameter tensor with its accumulated gradient.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// StateDict is a serializable snapshot of parameters or optimizer state.
// Values are deep copies; mutating a StateDict never aliases live state.
type StateDict map[string][]float64

// Model is the learner boundary: forward over a batch of in-context
// sequences, analytic backward, and a serializable parameter snapshot.
type Model interface {
	// Forward maps xs[b][p][d] to predictions out[b][p], caching whatever
	// it needs for the following Backward call.
	Forward(xs [][][]float64) [][]float64
	// Backward accumulates parameter gradients from dLoss/dOutput.
	Backward(grad [][]float64)
	// Parameters exposes the live parameter tensors for the optimizer.
	Parameters() []*Param
	StateDict() StateDict
	LoadStateDict(sd StateDict) error
	// NDims is the expected input dimensionality.
	NDims() int
}

// LinearPredictor predicts each position from a shared weight vector and
// bias over the (zero-padded) input dimensions.
type LinearPredictor struct {
	weight *Param
	bias   *Param
	lastXs [][][]float64
}

// NewLinearPredictor initializes weights from rng with small-scale normal
// noise and a zero bias.
func NewLinearPredictor(nDims int, rng *rand.Rand) *LinearPredictor {
	w := make([]float64, nDims)
	for d := range w {
		w[d] = rng.NormFloat64() * 0.01
	}
	return &LinearPredictor{
		weight: &Param{Name: "weight", Value: w, Grad: make([]float64, nDims)},
		bias:   &Param{Name: "bias", Value: make([]float64, 1), Grad: make([]float64, 1)},
	}
}

func (m *LinearPredictor) NDims() int { return len(m.weight.Value) }

func (m *LinearPredictor) Forward(xs [][][]float64) [][]float64 {
	m.lastXs = xs
	out := make([][]float64, len(xs))
	for b := range xs {
		out[b] = make([]float64, len(xs[b]))
		for p := range xs[b] {
			acc := m.bias.Value[0]
			for d, x := range xs[b][p] {
				acc += m.weight.Value[d] * x
			}
			out[b][p] = acc
		}
	}
	return out
}

// Backward accumulates dLoss/dWeight, dLoss/dBias from the inputs cached by
// the preceding Forward.
func (m *LinearPredictor) Backward(grad [][]float64) {
	for b := range grad {
		for p := range grad[b] {
			g := grad[b][p]
			for d, x := range m.lastXs[b][p] {
				m.weight.Grad[d] += g * x
			}
			m.bias.Grad[0] += g
		}
	}
}

func (m *LinearPredictor) Parameters() []*Param {
	return []*Param{m.weight, m.bias}
}

func (m *LinearPredictor) StateDict() StateDict {
	return StateDict{
		"weight": append([]float64(nil), m.weight.Value...),
		"bias":   append([]float64(nil), m.bias.Value...),
	}
}

func (m *LinearPredictor) LoadStateDict(sd StateDict) error {
	for _, p := range []*Param{m.weight, m.bias} {
		v, ok := sd[p.Name]
		if !ok {
			return fmt.Errorf("state dict missing %q", p.Name)
		}
		if len(v) != len(p.Value) {
			return fmt.Errorf("state dict %q has length %d, want %d", p.Name, len(v), len(p.Value))
		}
		copy(p.Value, v)
	}
	return nil
}
