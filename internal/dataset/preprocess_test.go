package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoChannelSplit builds 2x1x2 images: channel 0 holds a, channel 1 holds b.
func twoChannelSplit(t *testing.T, pixels [][4]float32) *Split {
	t.Helper()
	var images []float32
	var labels []int32
	for _, p := range pixels {
		images = append(images, p[:]...)
		labels = append(labels, 0)
	}
	s, err := NewSplit(images, labels, 2, 1, 2)
	require.NoError(t, err)
	return s
}

func TestComputeChannelStats_Population(t *testing.T) {
	train := twoChannelSplit(t, [][4]float32{
		{1, 3, 10, 10},
		{5, 7, 20, 30},
	})

	stats, err := ComputeChannelStats(train, StdPopulation)
	require.NoError(t, err)

	// Channel 0 values: 1, 3, 5, 7. Channel 1: 10, 10, 20, 30.
	assert.InDelta(t, 4.0, stats.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(5), stats.Std[0], 1e-12)
	assert.InDelta(t, 17.5, stats.Mean[1], 1e-12)
	assert.InDelta(t, math.Sqrt(68.75), stats.Std[1], 1e-12)
}

func TestComputeChannelStats_LegacyMean(t *testing.T) {
	train := twoChannelSplit(t, [][4]float32{{1, 3, 10, 10}, {5, 7, 20, 30}})

	stats, err := ComputeChannelStats(train, StdLegacyMean)
	require.NoError(t, err)

	assert.Equal(t, stats.Mean, stats.Std)
	assert.Equal(t, StdLegacyMean, stats.Mode)
}

func TestComputeChannelStats_Empty(t *testing.T) {
	_, err := ComputeChannelStats(&Split{Channels: 3, Height: 1, Width: 1}, StdPopulation)
	assert.ErrorIs(t, err, ErrShape)
}

func TestNormalize_TrainStatsOnly(t *testing.T) {
	train := twoChannelSplit(t, [][4]float32{{1, 3, 10, 10}, {5, 7, 20, 30}})
	test := twoChannelSplit(t, [][4]float32{{1000, 1000, -1000, -1000}})

	stats, err := ComputeChannelStats(train, StdPopulation)
	require.NoError(t, err)
	before := stats

	require.NoError(t, stats.Normalize(train))
	require.NoError(t, stats.Normalize(test))

	// Normalized train channels have zero mean and unit variance.
	recomputed, err := ComputeChannelStats(train, StdPopulation)
	require.NoError(t, err)
	for c := 0; c < 2; c++ {
		assert.InDelta(t, 0, recomputed.Mean[c], 1e-6)
		assert.InDelta(t, 1, recomputed.Std[c], 1e-6)
	}

	// The test split is scaled with train statistics, not its own.
	want := (1000 - before.Mean[0]) / before.Std[0]
	assert.InDelta(t, want, float64(test.Images[0]), 1e-3)
	assert.Equal(t, before, stats)
}

func TestNormalize_ConstantChannel(t *testing.T) {
	train := twoChannelSplit(t, [][4]float32{{2, 2, 1, 3}, {2, 2, 1, 3}})

	stats, err := ComputeChannelStats(train, StdPopulation)
	require.NoError(t, err)
	require.NoError(t, stats.Normalize(train))

	for _, v := range train.Images {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
	assert.Equal(t, float32(0), train.Images[0])
}

func TestNormalize_ChannelMismatch(t *testing.T) {
	stats := ChannelStats{Mean: []float64{0}, Std: []float64{1}}
	split := twoChannelSplit(t, [][4]float32{{1, 2, 3, 4}})
	assert.ErrorIs(t, stats.Normalize(split), ErrShape)
}

func TestOneHot(t *testing.T) {
	got, err := OneHot([]int32{2, 0, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{
		0, 0, 1,
		1, 0, 0,
		0, 1, 0,
	}, got)

	for row := 0; row < 3; row++ {
		var sum float32
		for _, v := range got[row*3 : (row+1)*3] {
			sum += v
		}
		assert.Equal(t, float32(1), sum)
	}
}

func TestOneHot_OutOfRange(t *testing.T) {
	_, err := OneHot([]int32{0, 3}, 3)
	assert.ErrorIs(t, err, ErrShape)

	_, err = OneHot([]int32{-1}, 3)
	assert.ErrorIs(t, err, ErrShape)
}

func TestParseStdMode(t *testing.T) {
	for in, want := range map[string]StdMode{
		"":            StdPopulation,
		"population":  StdPopulation,
		"legacy_mean": StdLegacyMean,
	} {
		got, err := ParseStdMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if in != "" {
			assert.Equal(t, in, got.String())
		}
	}

	_, err := ParseStdMode("sample")
	assert.Error(t, err)
}
