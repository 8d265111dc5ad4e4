package lrfinder

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// ErrEmptyCurve is returned when a curve has no usable samples.
var ErrEmptyCurve = errors.New("lrfinder: empty curve")

// Sample is the observation recorded for one training step.
// ValLoss is NaN on steps where validation was not sampled.
type Sample struct {
	Step         int     `csv:"step"`
	LR           float64 `csv:"lr"`
	Loss         float64 `csv:"loss"`
	SmoothedLoss float64 `csv:"smoothed_loss"`
	ValLoss      float64 `csv:"val_loss"`
}

// HasValLoss reports whether validation loss was measured at this step.
func (s Sample) HasValLoss() bool {
	return !math.IsNaN(s.ValLoss)
}

// Curve is the loss/lr curve of one sweep, in recorded order.
type Curve struct {
	Scale   Scale
	MinLR   float64
	MaxLR   float64
	Steps   int
	Samples []Sample
}

// Len returns the number of recorded samples.
func (c *Curve) Len() int {
	return len(c.Samples)
}

// Clip drops begin samples from the start and end samples from the end.
// The result has max(0, Len()-begin-end) samples and shares memory with c.
func (c *Curve) Clip(begin, end int) []Sample {
	begin = max(begin, 0)
	end = max(end, 0)
	if begin+end >= len(c.Samples) {
		return nil
	}
	return c.Samples[begin : len(c.Samples)-end]
}

// HasValidation reports whether any sample carries a validation loss.
func (c *Curve) HasValidation() bool {
	for _, s := range c.Samples {
		if s.HasValLoss() {
			return true
		}
	}
	return false
}

// Suggestion is a learning-rate range read off a curve.
type Suggestion struct {
	// MinLossLR is the rate at which the smoothed loss was lowest.
	MinLossLR float64
	// SteepestLR is the rate at which the smoothed loss fell fastest.
	SteepestLR float64
	// MaxLR is one decade below MinLossLR and BaseLR one decade below
	// MaxLR. Together they bound a cyclic schedule.
	MaxLR  float64
	BaseLR float64
}

// Schedule turns the suggested range into a schedule over steps.
func (s Suggestion) Schedule(steps int, scale Scale) (Schedule, error) {
	return NewSchedule(s.BaseLR, s.MaxLR, steps, scale)
}

// Suggest locates the minimum and the steepest descent of the smoothed loss.
// Non-finite samples are ignored.
func (c *Curve) Suggest() (Suggestion, error) {
	var lrs, losses stats.Float64Data
	for _, s := range c.Samples {
		if math.IsNaN(s.SmoothedLoss) || math.IsInf(s.SmoothedLoss, 0) {
			continue
		}
		lrs = append(lrs, s.LR)
		losses = append(losses, s.SmoothedLoss)
	}
	if len(losses) == 0 {
		return Suggestion{}, ErrEmptyCurve
	}

	lowest, err := stats.Min(losses)
	if err != nil {
		return Suggestion{}, fmt.Errorf("minimum loss: %w", err)
	}
	minIdx := indexOf(losses, lowest)

	steepIdx := 0
	if len(losses) > 1 {
		slopes := make(stats.Float64Data, len(losses)-1)
		for i := range slopes {
			slopes[i] = losses[i+1] - losses[i]
		}
		steepest, err := stats.Min(slopes)
		if err != nil {
			return Suggestion{}, fmt.Errorf("steepest slope: %w", err)
		}
		steepIdx = indexOf(slopes, steepest)
	}

	maxLR := lrs[minIdx] / 10
	return Suggestion{
		MinLossLR:  lrs[minIdx],
		SteepestLR: lrs[steepIdx],
		MaxLR:      maxLR,
		BaseLR:     maxLR / 10,
	}, nil
}

func indexOf(data []float64, v float64) int {
	for i, x := range data {
		if x == v {
			return i
		}
	}
	return 0
}
