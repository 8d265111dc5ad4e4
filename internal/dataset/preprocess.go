package dataset

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// minStd keeps normalization finite for constant channels.
const minStd = 1e-7

// StdMode selects how the per-channel scale is computed.
type StdMode int

const (
	// StdPopulation uses the population standard deviation of each channel.
	StdPopulation StdMode = iota

	// StdLegacyMean divides by the channel mean instead of its standard
	// deviation. Earlier experiment scripts did this by mistake; it exists
	// only to reproduce their numbers.
	StdLegacyMean
)

// String returns the mode name used in configuration files.
func (m StdMode) String() string {
	switch m {
	case StdPopulation:
		return "population"
	case StdLegacyMean:
		return "legacy_mean"
	default:
		return fmt.Sprintf("StdMode(%d)", int(m))
	}
}

// ParseStdMode parses a configuration value into a StdMode.
func ParseStdMode(s string) (StdMode, error) {
	switch s {
	case "", "population":
		return StdPopulation, nil
	case "legacy_mean":
		return StdLegacyMean, nil
	default:
		return 0, fmt.Errorf("unknown std mode %q", s)
	}
}

// ChannelStats holds one mean and one scale per channel.
type ChannelStats struct {
	Mean []float64
	Std  []float64
	Mode StdMode
}

// ComputeChannelStats computes per-channel statistics over a training split.
//
// Only the split passed in contributes; callers must pass the train split and
// reuse the result for the test split.
//
// The global variance is assembled from per-image means and variances
// (law of total variance). This is exact because every image contributes the
// same number of pixels per channel.
func ComputeChannelStats(train *Split, mode StdMode) (ChannelStats, error) {
	if train.Len() == 0 {
		return ChannelStats{}, fmt.Errorf("%w: empty training split", ErrShape)
	}

	plane := train.Height * train.Width
	result := ChannelStats{
		Mean: make([]float64, train.Channels),
		Std:  make([]float64, train.Channels),
		Mode: mode,
	}

	buf := make(stats.Float64Data, plane)
	means := make(stats.Float64Data, train.Len())
	variances := make(stats.Float64Data, train.Len())

	for c := 0; c < train.Channels; c++ {
		for i := 0; i < train.Len(); i++ {
			img := train.Image(i)
			for j, v := range img[c*plane : (c+1)*plane] {
				buf[j] = float64(v)
			}
			m, err := stats.Mean(buf)
			if err != nil {
				return ChannelStats{}, fmt.Errorf("channel %d image %d mean: %w", c, i, err)
			}
			v, err := stats.PopulationVariance(buf)
			if err != nil {
				return ChannelStats{}, fmt.Errorf("channel %d image %d variance: %w", c, i, err)
			}
			means[i] = m
			variances[i] = v
		}

		mean, err := stats.Mean(means)
		if err != nil {
			return ChannelStats{}, fmt.Errorf("channel %d mean: %w", c, err)
		}
		within, err := stats.Mean(variances)
		if err != nil {
			return ChannelStats{}, fmt.Errorf("channel %d within variance: %w", c, err)
		}
		between, err := stats.PopulationVariance(means)
		if err != nil {
			return ChannelStats{}, fmt.Errorf("channel %d between variance: %w", c, err)
		}

		result.Mean[c] = mean
		switch mode {
		case StdLegacyMean:
			result.Std[c] = mean
		default:
			result.Std[c] = math.Sqrt(within + between)
		}
	}

	return result, nil
}

// Normalize applies (x - mean) / std per channel, in place.
func (s ChannelStats) Normalize(split *Split) error {
	if split.Channels != len(s.Mean) || split.Channels != len(s.Std) {
		return fmt.Errorf("%w: stats for %d channels, split has %d", ErrShape, len(s.Mean), split.Channels)
	}

	plane := split.Height * split.Width
	for i := 0; i < split.Len(); i++ {
		img := split.Image(i)
		for c := 0; c < split.Channels; c++ {
			mean := float32(s.Mean[c])
			std := float32(math.Max(s.Std[c], minStd))
			px := img[c*plane : (c+1)*plane]
			for j := range px {
				px[j] = (px[j] - mean) / std
			}
		}
	}
	return nil
}

// OneHot encodes class indices as rows of length numClasses with a single 1.
func OneHot(labels []int32, numClasses int) ([]float32, error) {
	out := make([]float32, len(labels)*numClasses)
	for i, label := range labels {
		if label < 0 || int(label) >= numClasses {
			return nil, fmt.Errorf("%w: label %d at index %d outside [0, %d)", ErrShape, label, i, numClasses)
		}
		out[i*numClasses+int(label)] = 1
	}
	return out, nil
}
