// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package augment provides an endless batch generator with shuffling and
// random horizontal flips.
package augment

import (
	"github.com/born-ml/lrfind/internal/augment"
	"github.com/born-ml/lrfind/internal/dataset"
)

// Config controls batching and augmentation.
type Config = augment.Config

// Generator yields full batches forever, reshuffling between passes.
type Generator = augment.Generator

// NewGenerator creates a generator over split with one-hot targets.
func NewGenerator(split *dataset.Split, targets []float32, numClasses int, cfg Config) (*Generator, error) {
	return augment.NewGenerator(split, targets, numClasses, cfg)
}

// FlipHorizontal mirrors one [C, H, W] image in place.
func FlipHorizontal(img []float32, channels, height, width int) {
	augment.FlipHorizontal(img, channels, height, width)
}
