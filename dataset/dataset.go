// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset provides image splits, the CIFAR-10 binary reader and
// per-channel normalization.
//
// Images are stored as flat float32 slices in [N, C, H, W] order, which is
// the layout born tensors expect.
package dataset

import (
	"github.com/born-ml/lrfind/internal/dataset"
)

// Split is one set of labeled images.
type Split = dataset.Split

// Dataset holds the train and test splits.
type Dataset = dataset.Dataset

// Batch is a fixed-size group of samples with one-hot targets.
type Batch = dataset.Batch

// LoadOptions limits how much of a dataset is read.
type LoadOptions = dataset.LoadOptions

// ChannelStats holds per-channel mean and std computed on a train split.
type ChannelStats = dataset.ChannelStats

// StdMode selects how the per-channel scale is computed.
type StdMode = dataset.StdMode

// Scale modes.
const (
	StdPopulation = dataset.StdPopulation
	StdLegacyMean = dataset.StdLegacyMean
)

// CIFAR-10 geometry.
const (
	CIFARChannels = dataset.CIFARChannels
	CIFARHeight   = dataset.CIFARHeight
	CIFARWidth    = dataset.CIFARWidth
	CIFARClasses  = dataset.CIFARClasses
)

// ErrShape reports data whose geometry or labels are inconsistent.
var ErrShape = dataset.ErrShape

// NewSplit wraps images and labels after checking their sizes.
func NewSplit(images []float32, labels []int32, channels, height, width int) (*Split, error) {
	return dataset.NewSplit(images, labels, channels, height, width)
}

// LoadCIFAR10 reads the CIFAR-10 binary batches from dir.
func LoadCIFAR10(dir string, opts LoadOptions) (*Dataset, error) {
	return dataset.LoadCIFAR10(dir, opts)
}

// Synthetic generates a deterministic CIFAR-shaped dataset.
func Synthetic(numTrain, numTest int, seed uint64) (*Dataset, error) {
	return dataset.Synthetic(numTrain, numTest, seed)
}

// ParseStdMode validates a std mode name.
func ParseStdMode(s string) (StdMode, error) {
	return dataset.ParseStdMode(s)
}

// ComputeChannelStats computes per-channel statistics on a train split.
func ComputeChannelStats(train *Split, mode StdMode) (ChannelStats, error) {
	return dataset.ComputeChannelStats(train, mode)
}

// OneHot encodes class labels.
func OneHot(labels []int32, numClasses int) ([]float32, error) {
	return dataset.OneHot(labels, numClasses)
}
