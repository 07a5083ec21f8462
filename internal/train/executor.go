package train

import (
	"math"

	"icltrain/internal/model"
	"icltrain/internal/task"
)

// StepExecutor runs one optimization step against the model and optimizer
// collaborators. Each successful call mutates both exactly once.
type StepExecutor struct {
	Model     model.Model
	Optimizer model.Optimizer
}

// RunStep performs clear-gradients -> forward -> loss -> backward -> update
// and returns the scalar loss plus a detached copy of the raw output for
// metric computation.
//
// A non-finite loss aborts the step before any gradient is applied, so the
// last saved checkpoint still corresponds to a fully valid model. The error
// is fatal; there is no retry or silent skip.
func (e *StepExecutor) RunStep(xs [][][]float64, ys [][]float64, loss task.LossFunc) (float64, [][]float64, error) {
	e.Optimizer.ZeroGrad()
	output := e.Model.Forward(xs)
	lossValue, grad := loss(output, ys)
	if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
		return 0, nil, &NonFiniteLossError{Loss: lossValue}
	}
	e.Model.Backward(grad)
	e.Optimizer.Step()
	return lossValue, detach(output), nil
}

// detach deep-copies the output so downstream metric computation cannot
// alias buffers the model may reuse on the next forward pass.
func detach(out [][]float64) [][]float64 {
	cp := make([][]float64, len(out))
	for i := range out {
		cp[i] = append([]float64(nil), out[i]...)
	}
	return cp
}
