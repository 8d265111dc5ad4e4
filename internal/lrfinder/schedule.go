// Package lrfinder implements a learning-rate range search.
//
// A Finder is a training hook that drives the optimizer's learning rate from
// a minimum to a maximum over a short run, linearly or geometrically, and
// records the loss observed at every step. The recorded curve is persisted
// at run end and can be reloaded later to render a chart and suggest a
// cyclic learning-rate range.
//
// Lifecycle:
//
//	Sweeping  -> OnRunEnd persists the curve -> Finalized
//	LoadFinder (curve reloaded from storage) -> Idle
package lrfinder

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSchedule reports an impossible sweep configuration.
var ErrInvalidSchedule = errors.New("lrfinder: invalid schedule")

// Scale selects how rates are interpolated between the bounds.
type Scale string

// Supported scales.
const (
	ScaleLinear Scale = "linear"
	ScaleExp    Scale = "exp"
)

// ParseScale validates a scale name.
func ParseScale(s string) (Scale, error) {
	switch Scale(s) {
	case ScaleLinear:
		return ScaleLinear, nil
	case ScaleExp, "exponential":
		return ScaleExp, nil
	default:
		return "", fmt.Errorf("%w: unknown scale %q (want linear or exp)", ErrInvalidSchedule, s)
	}
}

// Schedule maps step indices to learning rates.
//
// Step 0 yields the minimum and step Steps()-1 yields the maximum. Linear
// schedules have a constant difference between consecutive rates, exp
// schedules a constant ratio. Steps beyond the end stay at the maximum.
type Schedule struct {
	minLR float64
	maxLR float64
	steps int
	scale Scale
}

// NewSchedule validates the bounds and returns a schedule over steps steps.
func NewSchedule(minLR, maxLR float64, steps int, scale Scale) (Schedule, error) {
	switch {
	case steps <= 0:
		return Schedule{}, fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidSchedule, steps)
	case math.IsNaN(minLR) || math.IsNaN(maxLR) || math.IsInf(minLR, 0) || math.IsInf(maxLR, 0):
		return Schedule{}, fmt.Errorf("%w: bounds must be finite", ErrInvalidSchedule)
	case minLR >= maxLR:
		return Schedule{}, fmt.Errorf("%w: min lr %g must be below max lr %g", ErrInvalidSchedule, minLR, maxLR)
	}
	switch scale {
	case ScaleLinear:
		if minLR < 0 {
			return Schedule{}, fmt.Errorf("%w: min lr %g is negative", ErrInvalidSchedule, minLR)
		}
	case ScaleExp:
		if minLR <= 0 {
			return Schedule{}, fmt.Errorf("%w: exp scale needs a positive min lr, got %g", ErrInvalidSchedule, minLR)
		}
	default:
		return Schedule{}, fmt.Errorf("%w: unknown scale %q", ErrInvalidSchedule, scale)
	}
	return Schedule{minLR: minLR, maxLR: maxLR, steps: steps, scale: scale}, nil
}

// Min returns the rate at step 0.
func (s Schedule) Min() float64 { return s.minLR }

// Max returns the rate at the final step.
func (s Schedule) Max() float64 { return s.maxLR }

// Steps returns the number of scheduled steps.
func (s Schedule) Steps() int { return s.steps }

// Scale returns the interpolation scale.
func (s Schedule) Scale() Scale { return s.scale }

// Rate returns the learning rate for step.
func (s Schedule) Rate(step int) float64 {
	if step <= 0 || s.steps == 1 {
		return s.minLR
	}
	if step >= s.steps-1 {
		return s.maxLR
	}
	frac := float64(step) / float64(s.steps-1)
	if s.scale == ScaleExp {
		return s.minLR * math.Pow(s.maxLR/s.minLR, frac)
	}
	return s.minLR + (s.maxLR-s.minLR)*frac
}

// Ratio returns the constant factor between consecutive rates of an exp
// schedule, and 1 for a single-step schedule.
func (s Schedule) Ratio() float64 {
	if s.steps == 1 {
		return 1
	}
	return math.Pow(s.maxLR/s.minLR, 1/float64(s.steps-1))
}

// Increment returns the constant difference between consecutive rates of a
// linear schedule, and 0 for a single-step schedule.
func (s Schedule) Increment() float64 {
	if s.steps == 1 {
		return 0
	}
	return (s.maxLR - s.minLR) / float64(s.steps-1)
}

// Rates returns every scheduled rate in step order.
func (s Schedule) Rates() []float64 {
	out := make([]float64, s.steps)
	for i := range out {
		out[i] = s.Rate(i)
	}
	return out
}

// String describes the schedule for logs.
func (s Schedule) String() string {
	return fmt.Sprintf("%s[%g, %g] over %d steps", s.scale, s.minLR, s.maxLR, s.steps)
}
