// Package dataset loads labeled image datasets and prepares them for training.
//
// Images are stored channel-first ([N, C, H, W]) in a single flat float32
// slice per split, which is the layout born's Conv2D expects.
package dataset

import (
	"errors"
	"fmt"
)

// ErrShape reports a data-shape violation: truncated records, labels outside
// the class range, or splits with mismatched geometry. It is never retried.
var ErrShape = errors.New("dataset: shape violation")

// Split is one partition of a dataset.
type Split struct {
	Images   []float32 // [N, C, H, W]
	Labels   []int32   // [N]
	Channels int
	Height   int
	Width    int
}

// NewSplit validates the geometry of images and labels and returns a Split.
func NewSplit(images []float32, labels []int32, channels, height, width int) (*Split, error) {
	if channels <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%dx%d", ErrShape, channels, height, width)
	}
	per := channels * height * width
	if len(images) != len(labels)*per {
		return nil, fmt.Errorf("%w: %d pixel values for %d labels of size %d", ErrShape, len(images), len(labels), per)
	}
	return &Split{
		Images:   images,
		Labels:   labels,
		Channels: channels,
		Height:   height,
		Width:    width,
	}, nil
}

// Len returns the number of samples.
func (s *Split) Len() int {
	return len(s.Labels)
}

// SampleSize returns the number of values in one image.
func (s *Split) SampleSize() int {
	return s.Channels * s.Height * s.Width
}

// Image returns the pixels of sample i. The slice aliases the split.
func (s *Split) Image(i int) []float32 {
	n := s.SampleSize()
	return s.Images[i*n : (i+1)*n]
}

// Subset copies the samples at the given indices into a new split.
func (s *Split) Subset(indices []int) *Split {
	n := s.SampleSize()
	images := make([]float32, 0, len(indices)*n)
	labels := make([]int32, 0, len(indices))
	for _, idx := range indices {
		images = append(images, s.Image(idx)...)
		labels = append(labels, s.Labels[idx])
	}
	return &Split{
		Images:   images,
		Labels:   labels,
		Channels: s.Channels,
		Height:   s.Height,
		Width:    s.Width,
	}
}

// Dataset is a train/test pair over a fixed set of classes.
type Dataset struct {
	Train      *Split
	Test       *Split
	NumClasses int
}

// Validate checks that both splits share the same geometry and that every
// label lies in [0, NumClasses).
func (d *Dataset) Validate() error {
	if d.Train == nil || d.Test == nil {
		return fmt.Errorf("%w: missing split", ErrShape)
	}
	if d.Train.Channels != d.Test.Channels || d.Train.Height != d.Test.Height || d.Train.Width != d.Test.Width {
		return fmt.Errorf("%w: train %dx%dx%d vs test %dx%dx%d", ErrShape,
			d.Train.Channels, d.Train.Height, d.Train.Width,
			d.Test.Channels, d.Test.Height, d.Test.Width)
	}
	for name, split := range map[string]*Split{"train": d.Train, "test": d.Test} {
		for i, label := range split.Labels {
			if label < 0 || int(label) >= d.NumClasses {
				return fmt.Errorf("%w: %s label %d at index %d outside [0, %d)", ErrShape, name, label, i, d.NumClasses)
			}
		}
	}
	return nil
}

// Batch is a fixed-size group of samples ready for a training step.
type Batch struct {
	Images   []float32 // [Size, C, H, W]
	Targets  []float32 // one-hot [Size, NumClasses]
	Size     int
	Channels int
	Height   int
	Width    int
}

// ClassIndices converts the one-hot targets back to class indices, which is
// what born's cross-entropy expects.
func (b *Batch) ClassIndices() []int32 {
	if b.Size == 0 {
		return nil
	}
	numClasses := len(b.Targets) / b.Size
	out := make([]int32, b.Size)
	for i := range out {
		row := b.Targets[i*numClasses : (i+1)*numClasses]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = int32(best) //nolint:gosec // G115: class count is small
	}
	return out
}
