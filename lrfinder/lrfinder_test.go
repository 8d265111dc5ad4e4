// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package lrfinder_test

import (
	"context"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/optim"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lrfind/augment"
	"github.com/born-ml/lrfind/dataset"
	"github.com/born-ml/lrfind/lrfinder"
	"github.com/born-ml/lrfind/model"
	"github.com/born-ml/lrfind/trainer"
)

func TestPublicAPI(t *testing.T) {
	fs := afero.NewMemMapFs()

	finder, err := lrfinder.New(lrfinder.Config{
		NumSamples: 50000,
		BatchSize:  128,
		MinLR:      1e-3,
		MaxLR:      10,
		Scale:      lrfinder.ScaleExp,
		SaveDir:    "weights",
	}, lrfinder.WithFs(fs))
	require.NoError(t, err)

	assert.Equal(t, lrfinder.PhaseSweeping, finder.Phase())
	assert.Equal(t, 390, finder.Schedule().Steps())

	plotted, err := lrfinder.PlotScheduleFromDir(fs, "weights", 10, 5, nil)
	require.NoError(t, err)
	assert.False(t, plotted)

	_, err = lrfinder.LoadCurve(fs, "weights")
	assert.ErrorIs(t, err, lrfinder.ErrNoCurve)
}

func TestPublicAPI_SweepThroughTrainer(t *testing.T) {
	const (
		batchSize = 8
		epochs    = 2
	)
	ds, err := dataset.Synthetic(32, 16, 7)
	require.NoError(t, err)
	targets, err := dataset.OneHot(ds.Train.Labels, ds.NumClasses)
	require.NoError(t, err)
	gen, err := augment.NewGenerator(ds.Train, targets, ds.NumClasses, augment.Config{
		BatchSize: batchSize,
		Shuffle:   true,
		Seed:      7,
	})
	require.NoError(t, err)

	backend := autodiff.New(cpu.New())
	net := model.NewCIFARNet(ds.NumClasses, backend)
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9}, backend)
	tr := trainer.New(net, opt, backend, nil)

	fs := afero.NewMemMapFs()
	steps := gen.StepsPerEpoch() * epochs
	finder, err := lrfinder.New(lrfinder.Config{
		NumSamples: steps * batchSize,
		BatchSize:  batchSize,
		MinLR:      1e-4,
		MaxLR:      1e-2,
		Scale:      lrfinder.ScaleExp,
		Validation: trainer.NewValidator(tr, ds.Test, batchSize, 7),
		SaveDir:    "weights",
	}, lrfinder.WithFs(fs))
	require.NoError(t, err)

	var callback trainer.Callback = finder
	history, err := tr.Fit(context.Background(), gen, trainer.FitConfig{
		Epochs:        epochs,
		StepsPerEpoch: gen.StepsPerEpoch(),
		BatchSize:     batchSize,
	}, callback)
	require.NoError(t, err)
	assert.Equal(t, lrfinder.PhaseFinalized, finder.Phase())

	curve := finder.Curve()
	require.Positive(t, curve.Len())
	assert.Len(t, history.Steps, curve.Len())
	assert.InDelta(t, 1e-4, curve.Samples[0].LR, 1e-12)
	assert.True(t, curve.Samples[0].HasValLoss())

	loaded, err := lrfinder.LoadCurve(fs, "weights")
	require.NoError(t, err)
	assert.Equal(t, curve.Len(), loaded.Len())
}
