// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lrfinder provides a learning-rate range search hook for born
// training loops.
//
// The finder sweeps the optimizer's learning rate between two bounds during
// a short run, records the loss at every step, and persists the curve so it
// can be plotted later without retraining.
//
// Example:
//
//	import (
//	    "github.com/born-ml/lrfind/lrfinder"
//	    "github.com/born-ml/lrfind/trainer"
//	)
//
//	tr := trainer.New(net, opt, backend, logger)
//	finder, err := lrfinder.New(lrfinder.Config{
//	    NumSamples: 50000,
//	    BatchSize:  128,
//	    MinLR:      1e-3,
//	    MaxLR:      10,
//	    Scale:      lrfinder.ScaleExp,
//	    SaveDir:    "weights",
//	})
//	history, err := tr.Fit(ctx, gen, trainer.FitConfig{
//	    Epochs:        1,
//	    StepsPerEpoch: 390,
//	    BatchSize:     128,
//	}, finder)
//	path, err := finder.PlotSchedule(10, 5)
package lrfinder

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/lrfinder"
)

// Finder sweeps the learning rate and records the loss curve.
type Finder = lrfinder.Finder

// Config describes one sweep.
type Config = lrfinder.Config

// Option customizes a Finder.
type Option = lrfinder.Option

// Validator measures loss on held-out samples.
type Validator = lrfinder.Validator

// Scale selects linear or exponential interpolation.
type Scale = lrfinder.Scale

// Schedule maps step indices to learning rates.
type Schedule = lrfinder.Schedule

// Curve is a recorded loss/lr curve.
type Curve = lrfinder.Curve

// Sample is one recorded step.
type Sample = lrfinder.Sample

// Suggestion is a learning-rate range read off a curve.
type Suggestion = lrfinder.Suggestion

// Phase is the finder lifecycle state.
type Phase = lrfinder.Phase

// Interpolation scales.
const (
	ScaleLinear = lrfinder.ScaleLinear
	ScaleExp    = lrfinder.ScaleExp
)

// Lifecycle phases.
const (
	PhaseSweeping  = lrfinder.PhaseSweeping
	PhaseFinalized = lrfinder.PhaseFinalized
	PhaseIdle      = lrfinder.PhaseIdle
)

// Errors.
var (
	ErrNoCurve         = lrfinder.ErrNoCurve
	ErrEmptyCurve      = lrfinder.ErrEmptyCurve
	ErrInvalidSchedule = lrfinder.ErrInvalidSchedule
	ErrTooFewPoints    = lrfinder.ErrTooFewPoints
)

// New creates a finder in the sweeping phase.
//
// Parameters:
//   - cfg: Sweep bounds, scale, optional validator and save directory
//   - opts: WithFs and WithLogger
//
// Returns ErrInvalidSchedule if the bounds or sizes cannot form a schedule.
// The finder is a trainer.Callback; pass it to Trainer.Fit.
func New(cfg Config, opts ...Option) (*Finder, error) {
	return lrfinder.New(cfg, opts...)
}

// NewSchedule creates a learning-rate schedule.
func NewSchedule(minLR, maxLR float64, steps int, scale Scale) (Schedule, error) {
	return lrfinder.NewSchedule(minLR, maxLR, steps, scale)
}

// ParseScale validates a scale name.
func ParseScale(s string) (Scale, error) {
	return lrfinder.ParseScale(s)
}

// WithFs sets the filesystem used for persistence and plots.
func WithFs(fs afero.Fs) Option {
	return lrfinder.WithFs(fs)
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return lrfinder.WithLogger(logger)
}

// LoadFinder rebuilds an idle finder from a persisted curve.
func LoadFinder(fs afero.Fs, dir string, logger *zap.Logger) (*Finder, error) {
	return lrfinder.LoadFinder(fs, dir, logger)
}

// LoadCurve reads a persisted curve.
func LoadCurve(fs afero.Fs, dir string) (*Curve, error) {
	return lrfinder.LoadCurve(fs, dir)
}

// PlotScheduleFromDir reloads and plots a persisted curve.
//
// Parameters:
//   - fs: Filesystem holding the curve
//   - dir: Save directory of the earlier sweep
//   - clipBeginning, clipEnding: Samples dropped from each end before drawing
//   - logger: Optional, may be nil
//
// Returns (false, nil) when dir holds no curve, (true, nil) once the chart
// is written, and ErrTooFewPoints when the clipped curve cannot be drawn.
func PlotScheduleFromDir(fs afero.Fs, dir string, clipBeginning, clipEnding int, logger *zap.Logger) (bool, error) {
	return lrfinder.PlotScheduleFromDir(fs, dir, clipBeginning, clipEnding, logger)
}
