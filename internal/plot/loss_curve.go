// Package plot renders the run summary artifacts.
package plot

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LossCurve renders steps vs loss to a PNG at path.
func LossCurve(path string, steps []int, losses []float64) error {
	if len(steps) != len(losses) {
		return fmt.Errorf("steps and losses length mismatch: %d vs %d", len(steps), len(losses))
	}

	pts := make(plotter.XYs, len(steps))
	for i := range steps {
		pts[i].X = float64(steps[i])
		pts[i].Y = losses[i]
	}

	p := plot.New()
	p.Title.Text = "Training Loss Curve"
	p.X.Label.Text = "Training Steps"
	p.Y.Label.Text = "Loss"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build loss line: %w", err)
	}
	p.Add(plotter.NewGrid(), line)
	p.Legend.Add("Training Loss", line)

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save loss curve: %w", err)
	}
	return nil
}
