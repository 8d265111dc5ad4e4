// Package main runs the learning-rate range search experiment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/born-ml/lrfind/internal/config"
	"github.com/born-ml/lrfind/internal/logging"
	"github.com/born-ml/lrfind/internal/pipeline"
)

const version = "v0.1.0"

type args struct {
	Config    string  `arg:"--config" help:"YAML config file; defaults reproduce the CIFAR-10 experiment"`
	Synthetic *bool   `arg:"--synthetic" help:"use generated data instead of the CIFAR-10 files"`
	Backend   *string `arg:"--backend" help:"cpu or webgpu"`
	DataDir   *string `arg:"--data-dir" help:"directory with the CIFAR-10 binary batches"`
	Epochs    *int    `arg:"--epochs" help:"number of training epochs"`
	NoFinder  bool    `arg:"--no-finder" help:"train without the learning-rate sweep"`
}

func (args) Version() string {
	return "lrfind " + version
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if a.Synthetic != nil {
		cfg.Data.Synthetic = *a.Synthetic
	}
	if a.Backend != nil {
		cfg.Backend = *a.Backend
	}
	if a.DataDir != nil {
		cfg.Data.Dir = *a.DataDir
	}
	if a.Epochs != nil {
		cfg.Train.Epochs = *a.Epochs
	}
	if a.NoFinder {
		cfg.LRFinder.Enabled = false
	}

	logger, err := logging.New(cfg.Log.Options())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	// Interrupting the run still lets the finder persist its curve.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := pipeline.Run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("run failed", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
