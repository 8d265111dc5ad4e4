package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesReferenceExperiment(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 128, cfg.Train.BatchSize)
	assert.Equal(t, 1, cfg.Train.Epochs)
	assert.Equal(t, 10, cfg.Data.NumClasses)
	assert.True(t, cfg.Train.Augmentation)
	assert.Equal(t, 1e-3, cfg.LRFinder.MinLR)
	assert.Equal(t, 10.0, cfg.LRFinder.MaxLR)
	assert.Equal(t, "exp", cfg.LRFinder.Scale)
	assert.Equal(t, 5, cfg.LRFinder.ValidationSampleRate)
	assert.Equal(t, 10, cfg.LRFinder.ClipBeginning)
	assert.Equal(t, 5, cfg.LRFinder.ClipEnding)
	assert.Equal(t, "val_acc", cfg.Checkpoint.Monitor)
	assert.Equal(t, "population", cfg.Preprocess.StdMode)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
data:
  synthetic: true
  max_train: 512
train:
  batch_size: 32
lr_finder:
  scale: linear
  min_lr: 0.0001
  max_lr: 1
backend: webgpu
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Data.Synthetic)
	assert.Equal(t, 512, cfg.Data.MaxTrain)
	assert.Equal(t, 32, cfg.Train.BatchSize)
	assert.Equal(t, "linear", cfg.LRFinder.Scale)
	assert.Equal(t, 1e-4, cfg.LRFinder.MinLR)
	assert.Equal(t, BackendWebGPU, cfg.Backend)

	// Untouched fields keep their defaults.
	assert.Equal(t, 0.9, cfg.Train.Momentum)
	assert.Equal(t, "weights", cfg.LRFinder.SaveDir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train: [not, a, map]\n"), 0o600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.Train.BatchSize = 0 }},
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }},
		{"exp with zero min lr", func(c *Config) { c.LRFinder.MinLR = 0 }},
		{"min above max", func(c *Config) { c.LRFinder.MinLR = 20 }},
		{"unknown scale", func(c *Config) { c.LRFinder.Scale = "cosine" }},
		{"unknown monitor", func(c *Config) { c.Checkpoint.Monitor = "f1" }},
		{"negative clip", func(c *Config) { c.LRFinder.ClipEnding = -1 }},
		{"unknown backend", func(c *Config) { c.Backend = "tpu" }},
		{"unknown std mode", func(c *Config) { c.Preprocess.StdMode = "sample" }},
		{"momentum of one", func(c *Config) { c.Train.Momentum = 1 }},
		{"no data source", func(c *Config) { c.Data.Dir = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidate_DisabledFinderSkipsFinderChecks(t *testing.T) {
	cfg := Default()
	cfg.LRFinder.Enabled = false
	cfg.LRFinder.Scale = "nonsense"
	assert.NoError(t, cfg.Validate())
}
