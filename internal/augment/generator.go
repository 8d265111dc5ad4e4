// Package augment produces an endless stream of training batches with
// optional random horizontal flips.
package augment

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/lrfind/internal/dataset"
)

// Config controls batch generation.
type Config struct {
	BatchSize      int
	Shuffle        bool
	HorizontalFlip bool
	Seed           uint64
}

// Generator yields fixed-size batches forever.
//
// It walks an index permutation of the split. When fewer than BatchSize
// indices remain in the current pass, they are carried into the next pass
// (reshuffled if Shuffle is set), so every batch is full.
type Generator struct {
	split      *dataset.Split
	targets    []float32
	numClasses int
	cfg        Config
	rng        *rand.Rand

	order []int
	pos   int
	pass  int
}

// NewGenerator creates a generator over split with one-hot targets.
func NewGenerator(split *dataset.Split, targets []float32, numClasses int, cfg Config) (*Generator, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("augment: batch size must be positive, got %d", cfg.BatchSize)
	}
	if split.Len() < cfg.BatchSize {
		return nil, fmt.Errorf("augment: split has %d samples, fewer than batch size %d", split.Len(), cfg.BatchSize)
	}
	if len(targets) != split.Len()*numClasses {
		return nil, fmt.Errorf("%w: %d target values for %d samples of %d classes",
			dataset.ErrShape, len(targets), split.Len(), numClasses)
	}

	g := &Generator{
		split:      split,
		targets:    targets,
		numClasses: numClasses,
		cfg:        cfg,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)), //nolint:gosec // G404: reproducible augmentation
	}
	g.order = g.permutation()
	return g, nil
}

// StepsPerEpoch is the number of full batches in one pass over the split.
func (g *Generator) StepsPerEpoch() int {
	return g.split.Len() / g.cfg.BatchSize
}

// Pass returns how many passes over the data have been started.
func (g *Generator) Pass() int {
	return g.pass
}

// Next returns the next batch. The returned batch owns its memory.
func (g *Generator) Next() (*dataset.Batch, error) {
	if g.split == nil {
		return nil, errors.New("augment: generator not initialized")
	}

	size := g.cfg.BatchSize
	sample := g.split.SampleSize()
	batch := &dataset.Batch{
		Images:   make([]float32, size*sample),
		Targets:  make([]float32, size*g.numClasses),
		Size:     size,
		Channels: g.split.Channels,
		Height:   g.split.Height,
		Width:    g.split.Width,
	}

	for i := 0; i < size; i++ {
		if g.pos == len(g.order) {
			g.order = g.permutation()
			g.pos = 0
		}
		idx := g.order[g.pos]
		g.pos++

		dst := batch.Images[i*sample : (i+1)*sample]
		copy(dst, g.split.Image(idx))
		if g.cfg.HorizontalFlip && g.rng.IntN(2) == 1 {
			FlipHorizontal(dst, g.split.Channels, g.split.Height, g.split.Width)
		}
		copy(batch.Targets[i*g.numClasses:(i+1)*g.numClasses], g.targets[idx*g.numClasses:(idx+1)*g.numClasses])
	}

	return batch, nil
}

func (g *Generator) permutation() []int {
	g.pass++
	n := g.split.Len()
	if g.cfg.Shuffle {
		return g.rng.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// FlipHorizontal mirrors a [C, H, W] image left-right in place.
func FlipHorizontal(img []float32, channels, height, width int) {
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			row := img[(c*height+y)*width : (c*height+y+1)*width]
			for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
				row[l], row[r] = row[r], row[l]
			}
		}
	}
}
