// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package trainer provides a synchronous training loop with lifecycle hooks.
//
// Hooks observe and steer a run: they can change the learning rate before a
// step, read the loss after it, end the run early with ErrStopRun, and
// persist state when the run ends. The learning-rate finder and the
// best-model checkpoint are both hooks.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	net := model.NewCIFARNet(10, backend)
//	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
//	tr := trainer.New(net, opt, backend, logger)
//
//	history, err := tr.Fit(ctx, gen, trainer.FitConfig{
//	    Epochs:        1,
//	    StepsPerEpoch: gen.StepsPerEpoch(),
//	    BatchSize:     128,
//	    Validation:    ds.Test,
//	}, finder, checkpoint)
package trainer

import (
	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/dataset"
	"github.com/born-ml/lrfind/internal/trainer"
)

// Trainer runs gradient descent for a model on an autodiff backend.
type Trainer[B tensor.Backend] = trainer.Trainer[B]

// Model is a classifier that maps a batch of images to class logits.
type Model[B tensor.Backend] = trainer.Model[B]

// Optimizer exposes the learning rate to hooks.
type Optimizer = trainer.Optimizer

// StepOptimizer is an Optimizer that can apply gradients.
type StepOptimizer = trainer.StepOptimizer

// BatchSource yields training batches.
type BatchSource = trainer.BatchSource

// FitConfig controls one call to Fit.
type FitConfig = trainer.FitConfig

// History records what happened during Fit.
type History = trainer.History

// Callback receives lifecycle events from Fit.
type Callback = trainer.Callback

// BaseCallback implements every hook as a no-op, for embedding.
type BaseCallback = trainer.BaseCallback

// Run describes the run passed to OnRunStart and OnRunEnd.
type Run = trainer.Run

// StepLogs is reported after every training step.
type StepLogs = trainer.StepLogs

// EpochLogs is reported after every epoch.
type EpochLogs = trainer.EpochLogs

// Score is one named evaluation result.
type Score = trainer.Score

// Scores is an ordered list of evaluation results.
type Scores = trainer.Scores

// Validator measures loss on a random subset of a held-out split.
type Validator[B tensor.Backend] = trainer.Validator[B]

// BestCheckpoint saves the model whenever a monitored metric improves.
type BestCheckpoint = trainer.BestCheckpoint

// Snapshotter persists model weights with metadata.
type Snapshotter = trainer.Snapshotter

// Monitor names the validation metric watched by BestCheckpoint.
type Monitor = trainer.Monitor

// Supported monitors.
const (
	MonitorValAcc  = trainer.MonitorValAcc
	MonitorValLoss = trainer.MonitorValLoss
)

// Metric names reported by Evaluate.
const (
	MetricLoss     = trainer.MetricLoss
	MetricAccuracy = trainer.MetricAccuracy
)

// ErrStopRun ends a run early when returned by a hook.
var ErrStopRun = trainer.ErrStopRun

// New creates a trainer. A nil logger disables logging.
func New[B tensor.Backend](
	model Model[*autodiff.Backend[B]],
	optimizer StepOptimizer,
	backend *autodiff.Backend[B],
	logger *zap.Logger,
) *Trainer[B] {
	return trainer.New(model, optimizer, backend, logger)
}

// NewValidator samples validation batches from split.
func NewValidator[B tensor.Backend](t *Trainer[B], split *dataset.Split, batchSize int, seed uint64) *Validator[B] {
	return trainer.NewValidator(t, split, batchSize, seed)
}

// NewBestCheckpoint saves model to path on every strict improvement of
// monitor.
func NewBestCheckpoint(path string, monitor Monitor, model Snapshotter, logger *zap.Logger) *BestCheckpoint {
	return trainer.NewBestCheckpoint(path, monitor, model, logger)
}

// ParseMonitor validates a monitor name.
func ParseMonitor(s string) (Monitor, error) {
	return trainer.ParseMonitor(s)
}
