package lrfinder

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lrfind/internal/trainer"
)

type fakeOptimizer struct {
	lr  float32
	set []float32
}

func (o *fakeOptimizer) GetLR() float32 { return o.lr }

func (o *fakeOptimizer) SetLR(lr float32) {
	o.lr = lr
	o.set = append(o.set, lr)
}

type fakeValidator struct {
	calls []int
	loss  float64
}

func (v *fakeValidator) ValidationLoss(_ context.Context, n int) (float64, error) {
	v.calls = append(v.calls, n)
	return v.loss, nil
}

// sweep drives f through a run the way trainer.Fit does and returns the
// error that ended it, if any.
func sweep(t *testing.T, f *Finder, opt trainer.Optimizer, losses []float64) error {
	t.Helper()
	ctx := context.Background()
	run := &trainer.Run{Epochs: 1, StepsPerEpoch: len(losses), BatchSize: 8, Optimizer: opt}

	require.NoError(t, f.OnRunStart(ctx, run))
	var stop error
	for step, loss := range losses {
		require.NoError(t, f.OnStepBegin(ctx, step))
		stop = f.OnStepEnd(ctx, step, trainer.StepLogs{Loss: loss, LR: float64(opt.GetLR())})
		if stop != nil {
			break
		}
	}
	require.NoError(t, f.OnRunEnd(ctx, run))
	return stop
}

func newTestFinder(t *testing.T, fs afero.Fs, cfg Config) *Finder {
	t.Helper()
	if cfg.NumSamples == 0 {
		cfg.NumSamples = 80
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.MinLR == 0 {
		cfg.MinLR = 1e-3
	}
	if cfg.MaxLR == 0 {
		cfg.MaxLR = 1
	}
	if cfg.Scale == "" {
		cfg.Scale = ScaleExp
	}
	f, err := New(cfg, WithFs(fs))
	require.NoError(t, err)
	return f
}

func decreasing(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 2.5 - 0.1*float64(i)
	}
	return out
}

func TestFinder_RecordsEveryStep(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})
	opt := &fakeOptimizer{}

	require.NoError(t, sweep(t, f, opt, decreasing(10)))

	curve := f.Curve()
	require.Equal(t, 10, curve.Len())
	for i, s := range curve.Samples {
		assert.Equal(t, i, s.Step)
		assert.Equal(t, f.Schedule().Rate(i), s.LR)
		assert.True(t, math.IsNaN(s.ValLoss), "no validation configured")
		if i > 0 {
			assert.Greater(t, s.Step, curve.Samples[i-1].Step)
		}
	}

	require.Len(t, opt.set, 10)
	assert.InEpsilon(t, 1e-3, float64(opt.set[0]), 1e-6)
	assert.InEpsilon(t, 1.0, float64(opt.set[9]), 1e-6)
	assert.Equal(t, PhaseFinalized, f.Phase())
}

func TestFinder_SmoothedLossIsBiasCorrected(t *testing.T) {
	f := newTestFinder(t, afero.NewMemMapFs(), Config{})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, []float64{2, 2, 2}))

	for _, s := range f.Curve().Samples {
		assert.InDelta(t, 2.0, s.SmoothedLoss, 1e-12)
	}
}

func TestFinder_StopsWhenLossExplodes(t *testing.T) {
	f := newTestFinder(t, afero.NewMemMapFs(), Config{LossSmoothingBeta: 0.5})
	losses := []float64{1, 1, 1, 50, 500, 5000, 1}

	err := sweep(t, f, &fakeOptimizer{}, losses)
	require.ErrorIs(t, err, trainer.ErrStopRun)

	curve := f.Curve()
	assert.Less(t, curve.Len(), len(losses))
	last := curve.Samples[curve.Len()-1]
	assert.Greater(t, last.SmoothedLoss, DefaultStoppingFactor*1.0)
}

func TestFinder_StopsOnNaNLoss(t *testing.T) {
	f := newTestFinder(t, afero.NewMemMapFs(), Config{})
	err := sweep(t, f, &fakeOptimizer{}, []float64{1, math.NaN(), 1})
	require.ErrorIs(t, err, trainer.ErrStopRun)
	assert.Equal(t, 2, f.Curve().Len())
}

func TestFinder_ValidationSampling(t *testing.T) {
	v := &fakeValidator{loss: 0.75}
	f := newTestFinder(t, afero.NewMemMapFs(), Config{
		Validation:           v,
		ValidationSampleRate: 3,
	})

	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(7)))

	assert.Equal(t, []int{24, 24, 24}, v.calls, "batch size 8 * rate 3, at steps 0, 3, 6")
	for _, s := range f.Curve().Samples {
		if s.Step%3 == 0 {
			assert.Equal(t, 0.75, s.ValLoss)
		} else {
			assert.False(t, s.HasValLoss())
		}
	}
	assert.True(t, f.Curve().HasValidation())
}

func TestFinder_PersistsOnEarlyStop(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})

	err := sweep(t, f, &fakeOptimizer{}, []float64{1, math.Inf(1)})
	require.ErrorIs(t, err, trainer.ErrStopRun)

	loaded, err := LoadCurve(fs, "weights")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestFinder_EmptyRunKeepsSavedCurve(t *testing.T) {
	fs := afero.NewMemMapFs()
	first := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, first, &fakeOptimizer{}, decreasing(10)))

	interrupted := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, interrupted, &fakeOptimizer{}, nil))
	assert.Equal(t, PhaseFinalized, interrupted.Phase())

	loaded, err := LoadCurve(fs, "weights")
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Len())

	plotted, err := PlotScheduleFromDir(fs, "weights", 0, 0, nil)
	require.NoError(t, err)
	assert.True(t, plotted)
}

func TestFinder_EmptyRunWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, nil))

	_, err := LoadCurve(fs, "weights")
	assert.ErrorIs(t, err, ErrNoCurve)
}

func TestFinder_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	v := &fakeValidator{loss: 1.25}
	f := newTestFinder(t, fs, Config{SaveDir: "weights", Validation: v, ValidationSampleRate: 2})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(9)))

	loaded, err := LoadFinder(fs, "weights", nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, loaded.Phase())

	want, got := f.Curve(), loaded.Curve()
	assert.Equal(t, want.Scale, got.Scale)
	assert.Equal(t, want.MinLR, got.MinLR)
	assert.Equal(t, want.MaxLR, got.MaxLR)
	assert.Equal(t, want.Steps, got.Steps)
	assertSamplesEqual(t, want.Samples, got.Samples)
}

func TestFinder_PlotSchedule(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(10)))

	path, err := f.PlotSchedule(2, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("weights", PlotFile), path)

	png, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "chart should be a PNG")
}

func TestFinder_PlotScheduleTooFewPoints(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(4)))

	_, err := f.PlotSchedule(2, 1)
	require.ErrorIs(t, err, ErrTooFewPoints)

	exists, err := afero.Exists(fs, filepath.Join("weights", PlotFile))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPlotScheduleFromDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newTestFinder(t, fs, Config{SaveDir: "weights"})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(10)))

	plotted, err := PlotScheduleFromDir(fs, "weights", 1, 1, nil)
	require.NoError(t, err)
	assert.True(t, plotted)

	exists, err := afero.Exists(fs, filepath.Join("weights", PlotFile))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPlotScheduleFromDir_Missing(t *testing.T) {
	fs := afero.NewMemMapFs()

	for _, dir := range []string{"does-not-exist", "empty"} {
		if dir == "empty" {
			require.NoError(t, fs.MkdirAll(dir, 0o755))
		}

		plotted, err := PlotScheduleFromDir(fs, dir, 10, 5, nil)
		require.NoError(t, err)
		assert.False(t, plotted)

		exists, err := afero.Exists(fs, filepath.Join(dir, PlotFile))
		require.NoError(t, err)
		assert.False(t, exists, "no chart for %s", dir)
	}
}

func TestFinder_RejectsSecondRun(t *testing.T) {
	f := newTestFinder(t, afero.NewMemMapFs(), Config{})
	require.NoError(t, sweep(t, f, &fakeOptimizer{}, decreasing(3)))

	err := f.OnRunStart(context.Background(), &trainer.Run{Optimizer: &fakeOptimizer{}})
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{NumSamples: 0, BatchSize: 8, MinLR: 0.1, MaxLR: 1, Scale: ScaleLinear})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = New(Config{NumSamples: 100, BatchSize: 8, MinLR: 0.1, MaxLR: 1, Scale: ScaleLinear, LossSmoothingBeta: 1})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = New(Config{NumSamples: 100, BatchSize: 8, MinLR: 1, MaxLR: 0.1, Scale: ScaleExp})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNew_FewerSamplesThanBatch(t *testing.T) {
	f, err := New(Config{NumSamples: 3, BatchSize: 8, MinLR: 0.1, MaxLR: 1, Scale: ScaleLinear})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Schedule().Steps())
}

func assertSamplesEqual(t *testing.T, want, got []Sample) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Step, got[i].Step)
		assert.Equal(t, want[i].LR, got[i].LR)
		assert.Equal(t, want[i].Loss, got[i].Loss)
		assert.Equal(t, want[i].SmoothedLoss, got[i].SmoothedLoss)
		if math.IsNaN(want[i].ValLoss) {
			assert.True(t, math.IsNaN(got[i].ValLoss), "sample %d val loss", i)
		} else {
			assert.Equal(t, want[i].ValLoss, got[i].ValLoss)
		}
	}
}
