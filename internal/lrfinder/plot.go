package lrfinder

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/spf13/afero"
	chart "github.com/wcharczuk/go-chart"
)

// ErrTooFewPoints is returned when a clipped curve cannot be drawn.
var ErrTooFewPoints = errors.New("lrfinder: need at least two finite points to plot")

// Render draws smoothed training loss (and sampled validation loss, when
// present) against the learning rate as a PNG. Exp curves use log10(lr) on
// the x axis.
func Render(w io.Writer, samples []Sample, scale Scale) error {
	xName := "learning rate"
	x := func(lr float64) float64 { return lr }
	if scale == ScaleExp {
		xName = "log10(learning rate)"
		x = math.Log10
	}

	var trainX, trainY, valX, valY []float64
	for _, s := range samples {
		if finite(s.SmoothedLoss) && finite(x(s.LR)) {
			trainX = append(trainX, x(s.LR))
			trainY = append(trainY, s.SmoothedLoss)
		}
		if finite(s.ValLoss) && finite(x(s.LR)) {
			valX = append(valX, x(s.LR))
			valY = append(valY, s.ValLoss)
		}
	}
	if len(trainX) < 2 {
		return fmt.Errorf("%w: %d usable samples", ErrTooFewPoints, len(trainX))
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "smoothed loss",
			XValues: trainX,
			YValues: trainY,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.ColorBlue,
			},
		},
	}
	yValues := [][]float64{trainY}
	if len(valX) >= 2 {
		yValues = append(yValues, valY)
		series = append(series, chart.ContinuousSeries{
			Name:    "validation loss",
			XValues: valX,
			YValues: valY,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.ColorRed,
			},
		})
	}

	graph := chart.Chart{
		Title:      "Learning Rate Range Test",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      xName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     paddedRange(trainX),
		},
		YAxis: chart.YAxis{
			Name:      "loss",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     paddedRange(yValues...),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Plot clips the curve and writes the chart to dir/PlotFile, returning the
// path written.
func (c *Curve) Plot(fs afero.Fs, dir string, clipBeginning, clipEnding int) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, PlotFile)
	f, err := fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	renderErr := Render(f, c.Clip(clipBeginning, clipEnding), c.Scale)
	closeErr := f.Close()
	if renderErr != nil {
		_ = fs.Remove(path)
		return "", renderErr
	}
	if closeErr != nil {
		return "", fmt.Errorf("close %s: %w", path, closeErr)
	}
	return path, nil
}

// paddedRange spans every value. go-chart cannot draw an axis with a zero
// delta, so a flat span is widened around its value.
func paddedRange(values ...[]float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi > lo {
		return &chart.ContinuousRange{Min: lo, Max: hi}
	}
	pad := math.Abs(lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
