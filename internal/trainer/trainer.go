package trainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/dataset"
)

// Model is a classifier that maps a batch of images to class logits.
type Model[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*nn.Parameter[B]
}

// StepOptimizer is an Optimizer that can apply gradients.
type StepOptimizer interface {
	Optimizer
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)
	ZeroGrad()
}

// BatchSource yields training batches. Sources may be infinite.
type BatchSource interface {
	Next() (*dataset.Batch, error)
}

// FitConfig controls one call to Fit.
type FitConfig struct {
	Epochs        int
	StepsPerEpoch int
	BatchSize     int

	// Validation is evaluated at the end of every epoch when non-nil.
	Validation          *dataset.Split
	ValidationBatchSize int
}

// History records what happened during Fit.
type History struct {
	Steps   []StepLogs
	Epochs  []EpochLogs
	Stopped bool // a hook returned ErrStopRun
}

// Trainer runs gradient descent for a model on an autodiff backend.
type Trainer[B tensor.Backend] struct {
	model     Model[*autodiff.Backend[B]]
	optimizer StepOptimizer
	backend   *autodiff.Backend[B]
	logger    *zap.Logger
}

// New creates a trainer. A nil logger disables logging.
func New[B tensor.Backend](
	model Model[*autodiff.Backend[B]],
	optimizer StepOptimizer,
	backend *autodiff.Backend[B],
	logger *zap.Logger,
) *Trainer[B] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer[B]{
		model:     model,
		optimizer: optimizer,
		backend:   backend,
		logger:    logger,
	}
}

// Fit trains for cfg.Epochs epochs of cfg.StepsPerEpoch steps each, invoking
// callbacks at every lifecycle point.
//
// Parameters:
//   - ctx: Checked before every step; cancellation ends the run with ctx.Err()
//   - src: Batch source, read once per step
//   - cfg: Epoch and step counts, plus an optional validation split
//   - callbacks: Hooks, invoked in order at every lifecycle point
//
// Returns:
//   - history: Per-step and per-epoch logs; nil only when cfg is invalid
//   - err: The first loop or hook error joined with any OnRunEnd error
//
// Hooks run in this order:
//
//	OnRunStart
//	  OnStepBegin, train step, OnStepEnd   (per step)
//	  validation, OnEpochEnd               (per epoch)
//	OnRunEnd
//
// OnRunEnd is always invoked, even when the loop fails or ctx is canceled,
// and runs with a context that is not canceled so hooks can persist state.
// A hook returning ErrStopRun ends the current epoch early (validation and
// OnEpochEnd still run) and skips the remaining epochs.
func (t *Trainer[B]) Fit(ctx context.Context, src BatchSource, cfg FitConfig, callbacks ...Callback) (*History, error) {
	if cfg.Epochs <= 0 || cfg.StepsPerEpoch <= 0 {
		return nil, fmt.Errorf("trainer: epochs (%d) and steps per epoch (%d) must be positive", cfg.Epochs, cfg.StepsPerEpoch)
	}
	if cfg.ValidationBatchSize <= 0 {
		cfg.ValidationBatchSize = cfg.BatchSize
	}

	run := &Run{
		Epochs:        cfg.Epochs,
		StepsPerEpoch: cfg.StepsPerEpoch,
		BatchSize:     cfg.BatchSize,
		Optimizer:     t.optimizer,
	}
	cbs := callbackList(callbacks)
	history := &History{}

	err := cbs.runStart(ctx, run)
	if err == nil {
		err = t.loop(ctx, src, cfg, cbs, history)
	}
	if errors.Is(err, ErrStopRun) {
		history.Stopped = true
		err = nil
	}

	endErr := cbs.runEnd(context.WithoutCancel(ctx), run)
	return history, errors.Join(err, endErr)
}

func (t *Trainer[B]) loop(ctx context.Context, src BatchSource, cfg FitConfig, cbs callbackList, history *History) error {
	tape := t.backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()

	step := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var totalLoss, totalAcc float64
		steps := 0
		var stop error

		for i := 0; i < cfg.StepsPerEpoch; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := cbs.stepBegin(ctx, step); err != nil {
				if errors.Is(err, ErrStopRun) {
					stop = err
					break
				}
				return err
			}

			batch, err := src.Next()
			if err != nil {
				return fmt.Errorf("next batch at step %d: %w", step, err)
			}
			loss, acc, err := t.trainStep(batch)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}

			logs := StepLogs{
				Epoch:    epoch,
				Loss:     loss,
				Accuracy: acc,
				LR:       float64(t.optimizer.GetLR()),
			}
			history.Steps = append(history.Steps, logs)
			totalLoss += loss
			totalAcc += acc
			steps++

			t.logger.Debug("step",
				zap.Int("epoch", epoch),
				zap.Int("step", step),
				zap.Float64("loss", loss),
				zap.Float64("acc", acc),
				zap.Float64("lr", logs.LR))

			err = cbs.stepEnd(ctx, step, logs)
			step++
			if errors.Is(err, ErrStopRun) {
				stop = err
				break
			}
			if err != nil {
				return err
			}
		}

		epochLogs := EpochLogs{}
		if steps > 0 {
			epochLogs.Loss = totalLoss / float64(steps)
			epochLogs.Accuracy = totalAcc / float64(steps)
		}
		if cfg.Validation != nil {
			scores, err := t.Evaluate(ctx, cfg.Validation, cfg.ValidationBatchSize)
			if err != nil {
				return fmt.Errorf("validate epoch %d: %w", epoch, err)
			}
			epochLogs.ValLoss, _ = scores.Get(MetricLoss)
			epochLogs.ValAcc, _ = scores.Get(MetricAccuracy)
			epochLogs.HasValidation = true
		}
		history.Epochs = append(history.Epochs, epochLogs)

		t.logger.Info("epoch complete",
			zap.Int("epoch", epoch+1),
			zap.Int("epochs", cfg.Epochs),
			zap.Int("steps", steps),
			zap.Float64("loss", epochLogs.Loss),
			zap.Float64("acc", epochLogs.Accuracy),
			zap.Float64("val_loss", epochLogs.ValLoss),
			zap.Float64("val_acc", epochLogs.ValAcc))

		if err := cbs.epochEnd(ctx, epoch, epochLogs); err != nil {
			return err
		}
		if stop != nil {
			return stop
		}
	}
	return nil
}

// trainStep runs forward, backward and the optimizer update for one batch.
func (t *Trainer[B]) trainStep(batch *dataset.Batch) (loss, accuracy float64, err error) {
	tape := t.backend.Tape()
	defer tape.Clear()

	t.optimizer.ZeroGrad()

	images, labels, err := t.batchTensors(batch.Images, batch.ClassIndices(), batch.Channels, batch.Height, batch.Width)
	if err != nil {
		return 0, 0, err
	}

	logits := t.model.Forward(images)
	lossRaw := t.backend.CrossEntropy(logits.Raw(), labels.Raw())
	lossValue := lossRaw.AsFloat32()[0]

	// Seed backprop with d(loss)/d(loss) = 1.
	outputGrad, err := tensor.NewRaw(lossRaw.Shape(), lossRaw.DType(), t.backend.Device())
	if err != nil {
		return 0, 0, fmt.Errorf("allocate output grad: %w", err)
	}
	outputGrad.AsFloat32()[0] = 1.0

	grads := tape.Backward(outputGrad, t.backend)
	t.optimizer.Step(grads)

	return float64(lossValue), float64(nn.Accuracy(logits, labels)), nil
}

func (t *Trainer[B]) batchTensors(
	images []float32,
	labels []int32,
	channels, height, width int,
) (*tensor.Tensor[float32, *autodiff.Backend[B]], *tensor.Tensor[int32, *autodiff.Backend[B]], error) {
	n := len(labels)
	x, err := tensor.FromSlice(images, tensor.Shape{n, channels, height, width}, t.backend)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: images: %w", dataset.ErrShape, err)
	}
	y, err := tensor.FromSlice(labels, tensor.Shape{n}, t.backend)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: labels: %w", dataset.ErrShape, err)
	}
	return x, y, nil
}
