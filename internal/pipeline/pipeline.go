// Package pipeline runs the full experiment: load, normalize, train with the
// learning-rate finder and best-model checkpoint attached, then evaluate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/augment"
	"github.com/born-ml/lrfind/internal/config"
	"github.com/born-ml/lrfind/internal/dataset"
	"github.com/born-ml/lrfind/internal/lrfinder"
	"github.com/born-ml/lrfind/internal/model"
	"github.com/born-ml/lrfind/internal/trainer"
)

// Synthetic split sizes used when the config leaves them at zero.
const (
	defaultSyntheticTrain = 2048
	defaultSyntheticTest  = 512
)

// Report summarizes a finished run.
type Report struct {
	Backend         string
	Stats           dataset.ChannelStats
	History         *trainer.History
	Scores          trainer.Scores
	Curve           *lrfinder.Curve      // nil when the finder is disabled
	Suggestion      *lrfinder.Suggestion // nil when the curve has no usable samples
	PlotPath        string
	CheckpointSaves int
}

// Run executes the experiment described by cfg and prints the final scores
// to out as "name : value" lines.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ds, stats, err := prepare(cfg, logger)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	if cfg.LRFinder.Enabled {
		plotPrevious(fs, cfg.LRFinder, logger)
	}

	if cfg.Backend == config.BackendWebGPU {
		if webgpu.IsAvailable() {
			gpu, err := webgpu.New()
			if err == nil {
				defer gpu.Release()
				logger.Info("using webgpu backend")
				return train(ctx, cfg, config.BackendWebGPU, ds, stats, fs, autodiff.New(gpu), logger, out)
			}
			logger.Warn("webgpu init failed, falling back to cpu", zap.Error(err))
		} else {
			logger.Warn("webgpu not available, falling back to cpu")
		}
	}
	return train(ctx, cfg, config.BackendCPU, ds, stats, fs, autodiff.New(cpu.New()), logger, out)
}

// prepare loads the dataset, normalizes both splits with train-only
// statistics and validates labels.
func prepare(cfg config.Config, logger *zap.Logger) (*dataset.Dataset, dataset.ChannelStats, error) {
	var (
		ds  *dataset.Dataset
		err error
	)
	if cfg.Data.Synthetic {
		nTrain, nTest := cfg.Data.MaxTrain, cfg.Data.MaxTest
		if nTrain == 0 {
			nTrain = defaultSyntheticTrain
		}
		if nTest == 0 {
			nTest = defaultSyntheticTest
		}
		ds, err = dataset.Synthetic(nTrain, nTest, cfg.Data.Seed)
	} else {
		ds, err = dataset.LoadCIFAR10(cfg.Data.Dir, dataset.LoadOptions{
			MaxTrain: cfg.Data.MaxTrain,
			MaxTest:  cfg.Data.MaxTest,
		})
	}
	if err != nil {
		return nil, dataset.ChannelStats{}, fmt.Errorf("load data: %w", err)
	}
	if ds.NumClasses != cfg.Data.NumClasses {
		return nil, dataset.ChannelStats{}, fmt.Errorf("%w: dataset has %d classes, config expects %d",
			dataset.ErrShape, ds.NumClasses, cfg.Data.NumClasses)
	}
	if err := ds.Validate(); err != nil {
		return nil, dataset.ChannelStats{}, err
	}
	logger.Info("dataset loaded",
		zap.Int("train", ds.Train.Len()),
		zap.Int("test", ds.Test.Len()),
		zap.Int("classes", ds.NumClasses),
		zap.Bool("synthetic", cfg.Data.Synthetic))

	mode, err := dataset.ParseStdMode(cfg.Preprocess.StdMode)
	if err != nil {
		return nil, dataset.ChannelStats{}, err
	}
	if mode == dataset.StdLegacyMean {
		logger.Warn("std_mode legacy_mean divides by the channel mean, not its standard deviation")
	}

	stats, err := dataset.ComputeChannelStats(ds.Train, mode)
	if err != nil {
		return nil, dataset.ChannelStats{}, fmt.Errorf("channel stats: %w", err)
	}
	for _, split := range []*dataset.Split{ds.Train, ds.Test} {
		if err := stats.Normalize(split); err != nil {
			return nil, dataset.ChannelStats{}, err
		}
	}
	logger.Info("normalized",
		zap.Float64s("mean", stats.Mean),
		zap.Float64s("std", stats.Std),
		zap.Stringer("std_mode", stats.Mode))

	return ds, stats, nil
}

// plotPrevious renders the curve left by an earlier run. The chart is for
// inspection only, so failures are logged and the run continues.
func plotPrevious(fs afero.Fs, cfg config.LRFinder, logger *zap.Logger) {
	plotted, err := lrfinder.PlotScheduleFromDir(fs, cfg.SaveDir, cfg.ClipBeginning, cfg.ClipEnding, logger)
	switch {
	case errors.Is(err, lrfinder.ErrTooFewPoints):
		logger.Warn("previous lr curve too short to plot", zap.Error(err))
	case err != nil:
		logger.Warn("cannot plot previous lr curve", zap.String("dir", cfg.SaveDir), zap.Error(err))
	case plotted:
		logger.Info("plotted previous lr curve", zap.String("dir", cfg.SaveDir))
	}
}

func train[B tensor.Backend](
	ctx context.Context,
	cfg config.Config,
	backendName string,
	ds *dataset.Dataset,
	stats dataset.ChannelStats,
	fs afero.Fs,
	backend *autodiff.Backend[B],
	logger *zap.Logger,
	out io.Writer,
) (*Report, error) {
	net := model.NewCIFARNet(ds.NumClasses, backend)
	params := net.Parameters()
	logger.Info("model built", zap.Int("parameters", model.CountParameters(params)))
	logger.Debug(net.String())

	optimizer := optim.NewSGD(params, optim.SGDConfig{
		LR:       float32(cfg.Train.LearningRate),
		Momentum: float32(cfg.Train.Momentum),
	}, backend)

	targets, err := dataset.OneHot(ds.Train.Labels, ds.NumClasses)
	if err != nil {
		return nil, err
	}
	gen, err := augment.NewGenerator(ds.Train, targets, ds.NumClasses, augment.Config{
		BatchSize:      cfg.Train.BatchSize,
		Shuffle:        cfg.Train.Shuffle,
		HorizontalFlip: cfg.Train.Augmentation,
		Seed:           cfg.Data.Seed,
	})
	if err != nil {
		return nil, err
	}

	stepsPerEpoch := cfg.Train.StepsPerEpoch
	if stepsPerEpoch == 0 {
		stepsPerEpoch = gen.StepsPerEpoch()
	}
	evalBatch := cfg.Train.EvalBatchSize
	if evalBatch == 0 {
		evalBatch = cfg.Train.BatchSize
	}

	tr := trainer.New(net, optimizer, backend, logger)

	monitor, err := trainer.ParseMonitor(cfg.Checkpoint.Monitor)
	if err != nil {
		return nil, err
	}
	checkpoint := trainer.NewBestCheckpoint(cfg.Checkpoint.Path, monitor, net, logger)
	callbacks := []trainer.Callback{checkpoint}

	var finder *lrfinder.Finder
	if cfg.LRFinder.Enabled {
		fc := cfg.LRFinder
		scale, err := lrfinder.ParseScale(fc.Scale)
		if err != nil {
			return nil, err
		}
		finderCfg := lrfinder.Config{
			NumSamples:           stepsPerEpoch * cfg.Train.Epochs * cfg.Train.BatchSize,
			BatchSize:            cfg.Train.BatchSize,
			MinLR:                fc.MinLR,
			MaxLR:                fc.MaxLR,
			Scale:                scale,
			ValidationSampleRate: fc.ValidationSampleRate,
			SaveDir:              fc.SaveDir,
			Verbose:              fc.Verbose,
			LossSmoothingBeta:    fc.LossSmoothingBeta,
			StoppingFactor:       fc.StoppingFactor,
		}
		if fc.UseValidation {
			finderCfg.Validation = trainer.NewValidator(tr, ds.Test, evalBatch, cfg.Data.Seed)
		}
		finder, err = lrfinder.New(finderCfg, lrfinder.WithFs(fs), lrfinder.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		callbacks = append([]trainer.Callback{finder}, callbacks...)
	}

	history, err := tr.Fit(ctx, gen, trainer.FitConfig{
		Epochs:              cfg.Train.Epochs,
		StepsPerEpoch:       stepsPerEpoch,
		BatchSize:           cfg.Train.BatchSize,
		Validation:          ds.Test,
		ValidationBatchSize: evalBatch,
	}, callbacks...)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if history.Stopped {
		logger.Info("training stopped early", zap.Int("steps", len(history.Steps)))
	}

	report := &Report{
		Backend:         backendName,
		Stats:           stats,
		History:         history,
		CheckpointSaves: checkpoint.Saves(),
	}

	if finder != nil {
		if err := summarizeSweep(finder, cfg.LRFinder, report, logger); err != nil {
			return nil, err
		}
	}

	scores, err := tr.Evaluate(ctx, ds.Test, evalBatch)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	report.Scores = scores
	for _, s := range scores {
		if _, err := fmt.Fprintf(out, "%s : %0.4f\n", s.Name, s.Value); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func summarizeSweep(finder *lrfinder.Finder, cfg config.LRFinder, report *Report, logger *zap.Logger) error {
	report.Curve = finder.Curve()

	path, err := finder.PlotSchedule(cfg.ClipBeginning, cfg.ClipEnding)
	switch {
	case errors.Is(err, lrfinder.ErrTooFewPoints):
		logger.Warn("lr curve too short to plot after clipping",
			zap.Int("samples", report.Curve.Len()),
			zap.Int("clip_beginning", cfg.ClipBeginning),
			zap.Int("clip_ending", cfg.ClipEnding))
	case err != nil:
		logger.Warn("cannot plot lr curve", zap.Error(err))
	default:
		report.PlotPath = path
	}

	suggestion, err := report.Curve.Suggest()
	if errors.Is(err, lrfinder.ErrEmptyCurve) {
		logger.Warn("lr curve has no usable samples, no suggestion")
		return nil
	}
	if err != nil {
		return err
	}
	report.Suggestion = &suggestion
	logger.Info("suggested lr range",
		zap.Float64("min_loss_lr", suggestion.MinLossLR),
		zap.Float64("steepest_lr", suggestion.SteepestLR),
		zap.Float64("base_lr", suggestion.BaseLR),
		zap.Float64("max_lr", suggestion.MaxLR))
	return nil
}
