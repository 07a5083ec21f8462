package model

import (
	"fmt"
	"math"
)

// Optimizer applies one gradient update to the parameters it was built
// over. Internal state (moment estimates, step counter) is serializable so
// a resumed run continues the exact same trajectory.
type Optimizer interface {
	// ZeroGrad clears all accumulated gradients.
	ZeroGrad()
	// Step applies one update from the current gradients.
	Step()
	StateDict() StateDict
	LoadStateDict(sd StateDict) error
}

// Adam is the reference optimizer (beta1=0.9, beta2=0.999, eps=1e-8), with
// per-parameter first/second moment estimates and a shared step counter.
type Adam struct {
	params []*Param
	lr     float64
	m      map[string][]float64
	v      map[string][]float64
	t      int
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		params: params,
		lr:     lr,
		m:      make(map[string][]float64, len(params)),
		v:      make(map[string][]float64, len(params)),
	}
	for _, p := range params {
		a.m[p.Name] = make([]float64, len(p.Value))
		a.v[p.Name] = make([]float64, len(p.Value))
	}
	return a
}

func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))
	for _, p := range a.params {
		m := a.m[p.Name]
		v := a.v[p.Name]
		for i, g := range p.Grad {
			m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
			v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
			mHat := m[i] / c1
			vHat := v[i] / c2
			p.Value[i] -= a.lr * mHat / (math.Sqrt(vHat) + adamEps)
		}
	}
}

func (a *Adam) StateDict() StateDict {
	sd := StateDict{"t": []float64{float64(a.t)}}
	for name, m := range a.m {
		sd["m."+name] = append([]float64(nil), m...)
	}
	for name, v := range a.v {
		sd["v."+name] = append([]float64(nil), v...)
	}
	return sd
}

func (a *Adam) LoadStateDict(sd StateDict) error {
	t, ok := sd["t"]
	if !ok || len(t) != 1 {
		return fmt.Errorf("optimizer state dict missing step counter")
	}
	a.t = int(t[0])
	for _, p := range a.params {
		for prefix, dst := range map[string]map[string][]float64{"m.": a.m, "v.": a.v} {
			src, ok := sd[prefix+p.Name]
			if !ok {
				return fmt.Errorf("optimizer state dict missing %q", prefix+p.Name)
			}
			if len(src) != len(p.Value) {
				return fmt.Errorf("optimizer state %q has length %d, want %d", prefix+p.Name, len(src), len(p.Value))
			}
			copy(dst[p.Name], src)
		}
	}
	return nil
}

// SGD is a plain gradient-descent optimizer, useful in tests where the
// update rule needs to be predictable by hand.
type SGD struct {
	params []*Param
	lr     float64
}

func NewSGD(params []*Param, lr float64) *SGD {
	return &SGD{params: params, lr: lr}
}

func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

func (s *SGD) Step() {
	for _, p := range s.params {
		for i, g := range p.Grad {
			p.Value[i] -= s.lr * g
		}
	}
}

// SGD carries no internal state beyond its hyperparameters.
func (s *SGD) StateDict() StateDict { return StateDict{} }

func (s *SGD) LoadStateDict(StateDict) error { return nil }
