package lrfinder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/trainer"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultLossSmoothingBeta    = 0.98
	DefaultStoppingFactor       = 4.0
	DefaultValidationSampleRate = 5
)

// Phase is the finder's lifecycle state.
type Phase int

// Finder phases.
const (
	PhaseSweeping Phase = iota
	PhaseFinalized
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseSweeping:
		return "sweeping"
	case PhaseFinalized:
		return "finalized"
	case PhaseIdle:
		return "idle"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Validator measures loss on n held-out samples.
type Validator interface {
	ValidationLoss(ctx context.Context, n int) (float64, error)
}

// Config describes one sweep.
type Config struct {
	NumSamples int
	BatchSize  int
	MinLR      float64
	MaxLR      float64
	Scale      Scale

	// Validation is optional. When set, validation loss is measured on
	// BatchSize*ValidationSampleRate samples every ValidationSampleRate steps.
	Validation           Validator
	ValidationSampleRate int

	// SaveDir receives the curve at run end. Empty disables persistence.
	SaveDir string
	Verbose bool

	LossSmoothingBeta float64
	StoppingFactor    float64
}

// Option customizes a Finder.
type Option func(*Finder)

// WithFs sets the filesystem used for persistence and plots.
func WithFs(fs afero.Fs) Option {
	return func(f *Finder) { f.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Finder) { f.logger = logger }
}

// Finder sweeps the learning rate during training and records the loss.
// It implements trainer.Callback and is driven from a single goroutine.
type Finder struct {
	trainer.BaseCallback

	cfg      Config
	schedule Schedule
	fs       afero.Fs
	logger   *zap.Logger

	phase     Phase
	optimizer trainer.Optimizer
	samples   []Sample

	avgLoss  float64
	bestLoss float64
}

// New validates cfg and returns a finder in the sweeping phase.
//
// The sweep spans max(NumSamples/BatchSize, 1) steps from MinLR to MaxLR.
// Zero values of LossSmoothingBeta, StoppingFactor and ValidationSampleRate
// take the package defaults.
//
// Parameters:
//   - cfg: Sweep bounds, scale, optional validator and save directory
//   - opts: WithFs to persist somewhere other than the OS filesystem,
//     WithLogger for progress logs
//
// Returns ErrInvalidSchedule if the bounds or sizes cannot form a schedule.
//
// Example:
//
//	finder, err := lrfinder.New(lrfinder.Config{
//	    NumSamples: 50000,
//	    BatchSize:  128,
//	    MinLR:      1e-3,
//	    MaxLR:      10,
//	    Scale:      lrfinder.ScaleExp,
//	    SaveDir:    "weights",
//	}, lrfinder.WithLogger(logger))
//	history, err := tr.Fit(ctx, gen, fitCfg, finder)
//	path, err := finder.PlotSchedule(10, 5)
func New(cfg Config, opts ...Option) (*Finder, error) {
	if cfg.NumSamples <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: num samples (%d) and batch size (%d) must be positive",
			ErrInvalidSchedule, cfg.NumSamples, cfg.BatchSize)
	}
	if cfg.LossSmoothingBeta == 0 {
		cfg.LossSmoothingBeta = DefaultLossSmoothingBeta
	}
	if cfg.LossSmoothingBeta < 0 || cfg.LossSmoothingBeta >= 1 {
		return nil, fmt.Errorf("%w: loss smoothing beta %g outside [0, 1)", ErrInvalidSchedule, cfg.LossSmoothingBeta)
	}
	if cfg.StoppingFactor <= 0 {
		cfg.StoppingFactor = DefaultStoppingFactor
	}
	if cfg.ValidationSampleRate <= 0 {
		cfg.ValidationSampleRate = DefaultValidationSampleRate
	}

	schedule, err := NewSchedule(cfg.MinLR, cfg.MaxLR, max(cfg.NumSamples/cfg.BatchSize, 1), cfg.Scale)
	if err != nil {
		return nil, err
	}

	f := &Finder{
		cfg:      cfg,
		schedule: schedule,
		fs:       afero.NewOsFs(),
		logger:   zap.NewNop(),
		phase:    PhaseSweeping,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// LoadFinder rebuilds an idle finder from a curve persisted in dir.
func LoadFinder(fs afero.Fs, dir string, logger *zap.Logger) (*Finder, error) {
	curve, err := LoadCurve(fs, dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule, err := NewSchedule(curve.MinLR, curve.MaxLR, max(curve.Steps, 1), curve.Scale)
	if err != nil {
		return nil, fmt.Errorf("curve in %s: %w", dir, err)
	}
	return &Finder{
		cfg: Config{
			MinLR:   curve.MinLR,
			MaxLR:   curve.MaxLR,
			Scale:   curve.Scale,
			SaveDir: dir,
		},
		schedule: schedule,
		fs:       fs,
		logger:   logger,
		phase:    PhaseIdle,
		samples:  curve.Samples,
	}, nil
}

// Phase returns the current lifecycle phase.
func (f *Finder) Phase() Phase { return f.phase }

// Schedule returns the sweep schedule.
func (f *Finder) Schedule() Schedule { return f.schedule }

// Curve returns a copy of the recorded curve.
func (f *Finder) Curve() *Curve {
	return &Curve{
		Scale:   f.schedule.Scale(),
		MinLR:   f.schedule.Min(),
		MaxLR:   f.schedule.Max(),
		Steps:   f.schedule.Steps(),
		Samples: append([]Sample(nil), f.samples...),
	}
}

// OnRunStart binds the run's optimizer.
func (f *Finder) OnRunStart(_ context.Context, run *trainer.Run) error {
	if f.phase != PhaseSweeping {
		return fmt.Errorf("lrfinder: cannot start a run in phase %s", f.phase)
	}
	if run.Optimizer == nil {
		return errors.New("lrfinder: run has no optimizer")
	}
	f.optimizer = run.Optimizer

	if total := run.TotalSteps(); total > f.schedule.Steps() {
		f.logger.Warn("run is longer than the sweep; late steps stay at max lr",
			zap.Int("run_steps", total),
			zap.Int("sweep_steps", f.schedule.Steps()))
	}
	f.logger.Info("lr sweep started", zap.Stringer("schedule", f.schedule))
	return nil
}

// OnStepBegin applies the scheduled rate for step.
func (f *Finder) OnStepBegin(_ context.Context, step int) error {
	if f.optimizer != nil {
		f.optimizer.SetLR(float32(f.schedule.Rate(step)))
	}
	return nil
}

// OnStepEnd records the step and stops the run once the smoothed loss
// exceeds StoppingFactor times its best value or the loss diverges.
func (f *Finder) OnStepEnd(ctx context.Context, step int, logs trainer.StepLogs) error {
	if f.phase != PhaseSweeping {
		return nil
	}
	sample := Sample{
		Step:    step,
		LR:      f.schedule.Rate(step),
		Loss:    logs.Loss,
		ValLoss: math.NaN(),
	}

	if f.cfg.Validation != nil && step%f.cfg.ValidationSampleRate == 0 {
		valLoss, err := f.cfg.Validation.ValidationLoss(ctx, f.cfg.BatchSize*f.cfg.ValidationSampleRate)
		if err != nil {
			return fmt.Errorf("validation loss at step %d: %w", step, err)
		}
		sample.ValLoss = valLoss
	}

	beta := f.cfg.LossSmoothingBeta
	n := len(f.samples) + 1
	f.avgLoss = beta*f.avgLoss + (1-beta)*logs.Loss
	sample.SmoothedLoss = f.avgLoss / (1 - math.Pow(beta, float64(n)))
	f.samples = append(f.samples, sample)

	if f.cfg.Verbose {
		fields := []zap.Field{
			zap.Int("step", step),
			zap.Float64("lr", sample.LR),
			zap.Float64("loss", sample.Loss),
			zap.Float64("smoothed_loss", sample.SmoothedLoss),
		}
		if sample.HasValLoss() {
			fields = append(fields, zap.Float64("val_loss", sample.ValLoss))
		}
		f.logger.Info("lr sweep", fields...)
	}

	if !finite(logs.Loss) {
		f.logger.Warn("loss diverged, stopping sweep", zap.Int("step", step), zap.Float64("loss", logs.Loss))
		return trainer.ErrStopRun
	}
	if n > 1 && sample.SmoothedLoss > f.cfg.StoppingFactor*f.bestLoss {
		f.logger.Info("smoothed loss exceeded stopping threshold, stopping sweep",
			zap.Int("step", step),
			zap.Float64("smoothed_loss", sample.SmoothedLoss),
			zap.Float64("best_loss", f.bestLoss))
		return trainer.ErrStopRun
	}
	if n == 1 || sample.SmoothedLoss < f.bestLoss {
		f.bestLoss = sample.SmoothedLoss
	}
	return nil
}

// OnRunEnd persists the curve and finalizes the finder.
func (f *Finder) OnRunEnd(context.Context, *trainer.Run) error {
	if f.phase != PhaseSweeping {
		return nil
	}
	f.phase = PhaseFinalized
	if f.cfg.SaveDir == "" {
		return nil
	}
	// An empty run must not replace the curve of an earlier sweep.
	if len(f.samples) == 0 {
		f.logger.Warn("lr sweep recorded no samples, keeping saved curve", zap.String("dir", f.cfg.SaveDir))
		return nil
	}
	if err := SaveCurve(f.fs, f.cfg.SaveDir, f.Curve()); err != nil {
		return fmt.Errorf("persist lr curve: %w", err)
	}
	f.logger.Info("lr curve saved", zap.String("dir", f.cfg.SaveDir), zap.Int("samples", len(f.samples)))
	return nil
}

// PlotSchedule renders the recorded curve into the save directory after
// clipping clipBeginning leading and clipEnding trailing samples.
func (f *Finder) PlotSchedule(clipBeginning, clipEnding int) (string, error) {
	if f.cfg.SaveDir == "" {
		return "", errors.New("lrfinder: no save directory to plot into")
	}
	path, err := f.Curve().Plot(f.fs, f.cfg.SaveDir, clipBeginning, clipEnding)
	if err != nil {
		return "", err
	}
	f.logger.Info("lr curve plotted", zap.String("path", path))
	return path, nil
}

// PlotScheduleFromDir reloads a persisted curve and renders it next to the
// curve files, without retraining.
//
// Parameters:
//   - fs: Filesystem holding the curve
//   - dir: Save directory of the earlier sweep
//   - clipBeginning, clipEnding: Samples dropped from each end before drawing
//   - logger: Receives a warning when no curve exists (nil disables logging)
//
// Returns:
//   - plotted: true when dir/lr_schedule.png was written
//   - err: nil for a missing curve; ErrTooFewPoints when the clipped curve
//     has fewer than two finite points; otherwise read or render errors
func PlotScheduleFromDir(fs afero.Fs, dir string, clipBeginning, clipEnding int, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := LoadFinder(fs, dir, logger)
	if errors.Is(err, ErrNoCurve) {
		logger.Warn("no saved lr curve, skipping plot", zap.String("dir", dir))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.PlotSchedule(clipBeginning, clipEnding); err != nil {
		return false, err
	}
	return true, nil
}
