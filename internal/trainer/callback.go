// Package trainer implements the synchronous training loop and the hooks it
// invokes at fixed points of a run.
//
// The loop is single-threaded. Hooks run on the training goroutine, in the
// order they were passed to Fit, and never concurrently with each other.
//
// Lifecycle of a run:
//
//	OnRunStart
//	for each step:
//	    OnStepBegin -> forward/backward/update -> OnStepEnd
//	    (at epoch boundary) OnEpochEnd
//	OnRunEnd (always, also after errors or early stop)
package trainer

import (
	"context"
	"errors"
)

// ErrStopRun is returned by a hook to end the run gracefully.
//
// Fit treats it as a normal termination: remaining steps are skipped,
// OnRunEnd is still invoked and Fit returns a nil error.
var ErrStopRun = errors.New("trainer: stop run")

// Optimizer is the subset of a born optimizer the loop and its hooks need.
//
// Both optim.SGD and optim.Adam satisfy it.
type Optimizer interface {
	GetLR() float32
	SetLR(lr float32)
}

// Run describes a training run to its hooks.
type Run struct {
	Epochs        int
	StepsPerEpoch int
	BatchSize     int
	Optimizer     Optimizer
}

// TotalSteps returns the number of steps the run is expected to execute.
func (r *Run) TotalSteps() int {
	return r.Epochs * r.StepsPerEpoch
}

// StepLogs carries the metrics of one completed training step.
type StepLogs struct {
	Epoch    int
	Loss     float64
	Accuracy float64
	LR       float64
}

// EpochLogs carries the metrics of one completed epoch.
//
// HasValidation is false when the run has no validation split, in which case
// ValLoss and ValAcc are zero.
type EpochLogs struct {
	Loss          float64
	Accuracy      float64
	ValLoss       float64
	ValAcc        float64
	HasValidation bool
}

// Callback is invoked by Trainer.Fit at fixed points of a run.
//
// Returning ErrStopRun from OnStepBegin, OnStepEnd or OnEpochEnd stops the
// run gracefully. Any other error aborts the run and is returned by Fit.
type Callback interface {
	OnRunStart(ctx context.Context, run *Run) error
	OnStepBegin(ctx context.Context, step int) error
	OnStepEnd(ctx context.Context, step int, logs StepLogs) error
	OnEpochEnd(ctx context.Context, epoch int, logs EpochLogs) error
	OnRunEnd(ctx context.Context, run *Run) error
}

// BaseCallback implements every Callback method as a no-op.
// Embed it to implement only the hooks you need.
type BaseCallback struct{}

func (BaseCallback) OnRunStart(context.Context, *Run) error { return nil }
func (BaseCallback) OnStepBegin(context.Context, int) error { return nil }
func (BaseCallback) OnStepEnd(context.Context, int, StepLogs) error { return nil }
func (BaseCallback) OnEpochEnd(context.Context, int, EpochLogs) error { return nil }
func (BaseCallback) OnRunEnd(context.Context, *Run) error { return nil }

// callbackList fans a hook out to every callback in order, stopping at the
// first error.
type callbackList []Callback

func (l callbackList) runStart(ctx context.Context, run *Run) error {
	for _, cb := range l {
		if err := cb.OnRunStart(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (l callbackList) stepBegin(ctx context.Context, step int) error {
	for _, cb := range l {
		if err := cb.OnStepBegin(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (l callbackList) stepEnd(ctx context.Context, step int, logs StepLogs) error {
	for _, cb := range l {
		if err := cb.OnStepEnd(ctx, step, logs); err != nil {
			return err
		}
	}
	return nil
}

func (l callbackList) epochEnd(ctx context.Context, epoch int, logs EpochLogs) error {
	for _, cb := range l {
		if err := cb.OnEpochEnd(ctx, epoch, logs); err != nil {
			return err
		}
	}
	return nil
}

// runEnd invokes every OnRunEnd even if some fail, so that every hook gets
// the chance to persist its state.
func (l callbackList) runEnd(ctx context.Context, run *Run) error {
	var errs []error
	for _, cb := range l {
		if err := cb.OnRunEnd(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
