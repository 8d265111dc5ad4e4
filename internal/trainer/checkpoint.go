package trainer

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"
)

// Monitor names a validation metric watched by BestCheckpoint.
type Monitor string

// Supported monitors. Accuracy is maximized, loss is minimized.
const (
	MonitorValAcc  Monitor = "val_acc"
	MonitorValLoss Monitor = "val_loss"
)

// ParseMonitor validates a monitor name from configuration.
func ParseMonitor(s string) (Monitor, error) {
	switch m := Monitor(s); m {
	case MonitorValAcc, MonitorValLoss:
		return m, nil
	default:
		return "", fmt.Errorf("unknown checkpoint monitor %q", s)
	}
}

// Snapshotter persists model parameters to a single path.
type Snapshotter interface {
	Save(path string, metadata map[string]string) error
}

// BestCheckpoint saves the model at epoch end whenever the monitored
// validation metric strictly improves. Ties do not overwrite the checkpoint.
type BestCheckpoint struct {
	BaseCallback

	path    string
	monitor Monitor
	model   Snapshotter
	logger  *zap.Logger

	best  float64
	saves int
}

// NewBestCheckpoint creates a checkpoint hook writing to path.
func NewBestCheckpoint(path string, monitor Monitor, model Snapshotter, logger *zap.Logger) *BestCheckpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &BestCheckpoint{
		path:    path,
		monitor: monitor,
		model:   model,
		logger:  logger,
	}
	c.reset()
	return c
}

func (c *BestCheckpoint) reset() {
	c.saves = 0
	if c.monitor == MonitorValLoss {
		c.best = math.Inf(1)
	} else {
		c.best = math.Inf(-1)
	}
}

// Best returns the best monitored value seen so far.
func (c *BestCheckpoint) Best() float64 {
	return c.best
}

// Saves returns how many times the checkpoint was written in this run.
func (c *BestCheckpoint) Saves() int {
	return c.saves
}

// OnRunStart forgets the previous run's best value.
func (c *BestCheckpoint) OnRunStart(context.Context, *Run) error {
	c.reset()
	return nil
}

// OnEpochEnd writes the checkpoint on strict improvement.
// Write failures are returned and abort the run.
func (c *BestCheckpoint) OnEpochEnd(_ context.Context, epoch int, logs EpochLogs) error {
	if !logs.HasValidation {
		c.logger.Warn("checkpoint skipped: no validation metrics", zap.Int("epoch", epoch+1))
		return nil
	}

	current := logs.ValAcc
	if c.monitor == MonitorValLoss {
		current = logs.ValLoss
	}
	if !c.improved(current) {
		c.logger.Info("checkpoint not improved",
			zap.Int("epoch", epoch+1),
			zap.String("monitor", string(c.monitor)),
			zap.Float64("value", current),
			zap.Float64("best", c.best))
		return nil
	}

	metadata := map[string]string{
		"epoch":           strconv.Itoa(epoch + 1),
		string(c.monitor): strconv.FormatFloat(current, 'g', -1, 64),
	}
	if err := c.model.Save(c.path, metadata); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.path, err)
	}

	c.logger.Info("checkpoint saved",
		zap.Int("epoch", epoch+1),
		zap.String("monitor", string(c.monitor)),
		zap.Float64("previous", c.best),
		zap.Float64("value", current),
		zap.String("path", c.path))
	c.best = current
	c.saves++
	return nil
}

func (c *BestCheckpoint) improved(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if c.monitor == MonitorValLoss {
		return v < c.best
	}
	return v > c.best
}
