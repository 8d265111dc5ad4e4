// Package config holds the explicit configuration of an lrfind run.
//
// Defaults reproduce the reference CIFAR-10 experiment. A YAML file may
// override any subset of fields.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/lrfind/internal/dataset"
	"github.com/born-ml/lrfind/internal/logging"
	"github.com/born-ml/lrfind/internal/lrfinder"
	"github.com/born-ml/lrfind/internal/trainer"
)

// ErrInvalidConfig reports a configuration that cannot run.
var ErrInvalidConfig = errors.New("config: invalid")

// Backend names.
const (
	BackendCPU    = "cpu"
	BackendWebGPU = "webgpu"
)

// Config is the full run configuration.
type Config struct {
	Data       Data       `yaml:"data"`
	Preprocess Preprocess `yaml:"preprocess"`
	Train      Train      `yaml:"train"`
	LRFinder   LRFinder   `yaml:"lr_finder"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Log        Log        `yaml:"log"`
	Backend    string     `yaml:"backend"`
}

// Data selects the dataset.
type Data struct {
	Dir        string `yaml:"dir"`
	Synthetic  bool   `yaml:"synthetic"`
	MaxTrain   int    `yaml:"max_train"`
	MaxTest    int    `yaml:"max_test"`
	NumClasses int    `yaml:"num_classes"`
	Seed       uint64 `yaml:"seed"`
}

// Preprocess controls normalization.
type Preprocess struct {
	StdMode string `yaml:"std_mode"`
}

// Train controls the optimizer and batch generation.
type Train struct {
	BatchSize     int     `yaml:"batch_size"`
	Epochs        int     `yaml:"epochs"`
	LearningRate  float64 `yaml:"learning_rate"`
	Momentum      float64 `yaml:"momentum"`
	Augmentation  bool    `yaml:"augmentation"`
	Shuffle       bool    `yaml:"shuffle"`
	EvalBatchSize int     `yaml:"eval_batch_size"`
	StepsPerEpoch int     `yaml:"steps_per_epoch"` // 0 means one pass over the train split
}

// LRFinder configures the learning-rate range search.
type LRFinder struct {
	Enabled              bool    `yaml:"enabled"`
	MinLR                float64 `yaml:"min_lr"`
	MaxLR                float64 `yaml:"max_lr"`
	Scale                string  `yaml:"scale"`
	UseValidation        bool    `yaml:"use_validation"`
	ValidationSampleRate int     `yaml:"validation_sample_rate"`
	SaveDir              string  `yaml:"save_dir"`
	Verbose              bool    `yaml:"verbose"`
	LossSmoothingBeta    float64 `yaml:"loss_smoothing_beta"`
	StoppingFactor       float64 `yaml:"stopping_factor"`
	ClipBeginning        int     `yaml:"clip_beginning"`
	ClipEnding           int     `yaml:"clip_ending"`
}

// Checkpoint configures best-model saving.
type Checkpoint struct {
	Path    string `yaml:"path"`
	Monitor string `yaml:"monitor"`
}

// Log configures the logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Options converts the section to logging options.
func (l Log) Options() logging.Options {
	return logging.Options{Level: l.Level, Development: l.Development}
}

// Default returns the reference experiment configuration.
func Default() Config {
	return Config{
		Data: Data{
			Dir:        "data/cifar-10-batches-bin",
			NumClasses: dataset.CIFARClasses,
			Seed:       1,
		},
		Preprocess: Preprocess{
			StdMode: dataset.StdPopulation.String(),
		},
		Train: Train{
			BatchSize:     128,
			Epochs:        1,
			LearningRate:  0.1,
			Momentum:      0.9,
			Augmentation:  true,
			Shuffle:       true,
			EvalBatchSize: 256,
		},
		LRFinder: LRFinder{
			Enabled:              true,
			MinLR:                1e-3,
			MaxLR:                10,
			Scale:                string(lrfinder.ScaleExp),
			ValidationSampleRate: lrfinder.DefaultValidationSampleRate,
			SaveDir:              "weights",
			Verbose:              true,
			LossSmoothingBeta:    lrfinder.DefaultLossSmoothingBeta,
			StoppingFactor:       lrfinder.DefaultStoppingFactor,
			ClipBeginning:        10,
			ClipEnding:           5,
		},
		Checkpoint: Checkpoint{
			Path:    "weights/cifarnet_schedule.snap",
			Monitor: string(trainer.MonitorValAcc),
		},
		Log: Log{
			Level: "info",
		},
		Backend: BackendCPU,
	}
}

// Load reads a YAML file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Data.Synthetic || c.Data.Dir != "", "data.dir is required unless data.synthetic is set")
	check(c.Data.MaxTrain >= 0 && c.Data.MaxTest >= 0, "data.max_train and data.max_test must not be negative")
	check(c.Data.NumClasses > 1, "data.num_classes must be at least 2, got %d", c.Data.NumClasses)

	if _, err := dataset.ParseStdMode(c.Preprocess.StdMode); err != nil {
		errs = append(errs, err)
	}

	check(c.Train.BatchSize > 0, "train.batch_size must be positive, got %d", c.Train.BatchSize)
	check(c.Train.Epochs > 0, "train.epochs must be positive, got %d", c.Train.Epochs)
	check(c.Train.LearningRate > 0, "train.learning_rate must be positive, got %g", c.Train.LearningRate)
	check(c.Train.Momentum >= 0 && c.Train.Momentum < 1, "train.momentum must be in [0, 1), got %g", c.Train.Momentum)
	check(c.Train.EvalBatchSize >= 0, "train.eval_batch_size must not be negative")
	check(c.Train.StepsPerEpoch >= 0, "train.steps_per_epoch must not be negative")

	if c.LRFinder.Enabled {
		f := c.LRFinder
		scale, err := lrfinder.ParseScale(f.Scale)
		if err != nil {
			errs = append(errs, err)
		} else if _, err := lrfinder.NewSchedule(f.MinLR, f.MaxLR, 2, scale); err != nil {
			errs = append(errs, err)
		}
		check(f.ValidationSampleRate > 0, "lr_finder.validation_sample_rate must be positive, got %d", f.ValidationSampleRate)
		check(f.LossSmoothingBeta >= 0 && f.LossSmoothingBeta < 1, "lr_finder.loss_smoothing_beta must be in [0, 1)")
		check(f.StoppingFactor >= 0, "lr_finder.stopping_factor must not be negative")
		check(f.ClipBeginning >= 0 && f.ClipEnding >= 0, "lr_finder clip values must not be negative")
	}

	check(c.Checkpoint.Path != "", "checkpoint.path is required")
	if _, err := trainer.ParseMonitor(c.Checkpoint.Monitor); err != nil {
		errs = append(errs, err)
	}

	check(c.Backend == BackendCPU || c.Backend == BackendWebGPU, "backend must be %q or %q, got %q", BackendCPU, BackendWebGPU, c.Backend)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
