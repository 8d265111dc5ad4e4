package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
)

// CIFAR-10 geometry.
const (
	CIFARChannels = 3
	CIFARHeight   = 32
	CIFARWidth    = 32
	CIFARClasses  = 10

	cifarRecordSize = 1 + CIFARChannels*CIFARHeight*CIFARWidth
)

var (
	cifarTrainFiles = []string{
		"data_batch_1.bin",
		"data_batch_2.bin",
		"data_batch_3.bin",
		"data_batch_4.bin",
		"data_batch_5.bin",
	}
	cifarTestFiles = []string{"test_batch.bin"}
)

// LoadOptions limits how much of a dataset is read.
type LoadOptions struct {
	MaxTrain int // 0 = all
	MaxTest  int // 0 = all
}

// LoadCIFAR10 reads the binary CIFAR-10 distribution from dir.
//
// Binary format, repeated once per image:
//
//	label: 1 byte (0-9)
//	pixels: 3072 bytes, 1024 red then 1024 green then 1024 blue, row-major
//
// Pixels are converted to float32 without rescaling.
func LoadCIFAR10(dir string, opts LoadOptions) (*Dataset, error) {
	train, err := readCIFARSplit(dir, cifarTrainFiles, opts.MaxTrain)
	if err != nil {
		return nil, fmt.Errorf("load train split: %w", err)
	}
	test, err := readCIFARSplit(dir, cifarTestFiles, opts.MaxTest)
	if err != nil {
		return nil, fmt.Errorf("load test split: %w", err)
	}

	ds := &Dataset{Train: train, Test: test, NumClasses: CIFARClasses}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func readCIFARSplit(dir string, files []string, maxSamples int) (*Split, error) {
	var images []float32
	var labels []int32

	for _, name := range files {
		remaining := 0
		if maxSamples > 0 {
			remaining = maxSamples - len(labels)
			if remaining <= 0 {
				break
			}
		}
		img, lbl, err := readCIFARFile(filepath.Join(dir, name), remaining)
		if err != nil {
			return nil, err
		}
		images = append(images, img...)
		labels = append(labels, lbl...)
	}

	return NewSplit(images, labels, CIFARChannels, CIFARHeight, CIFARWidth)
}

// readCIFARFile reads up to limit records (0 = all) from a single batch file.
func readCIFARFile(path string, limit int) ([]float32, []int32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return decodeCIFAR(bufio.NewReader(file), limit)
}

func decodeCIFAR(r io.Reader, limit int) ([]float32, []int32, error) {
	var images []float32
	var labels []int32

	record := make([]byte, cifarRecordSize)
	for limit == 0 || len(labels) < limit {
		_, err := io.ReadFull(r, record)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, fmt.Errorf("%w: truncated record %d", ErrShape, len(labels))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read record %d: %w", len(labels), err)
		}

		label := record[0]
		if int(label) >= CIFARClasses {
			return nil, nil, fmt.Errorf("%w: label %d at record %d", ErrShape, label, len(labels))
		}
		labels = append(labels, int32(label))
		for _, px := range record[1:] {
			images = append(images, float32(px))
		}
	}

	return images, labels, nil
}

// Synthetic builds a deterministic CIFAR-shaped dataset for offline runs.
//
// Each class gets its own base color and a horizontal gradient, plus noise,
// so a small CNN can separate the classes within a few hundred steps.
func Synthetic(numTrain, numTest int, seed uint64) (*Dataset, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // G404: reproducible synthetic data

	build := func(n int) (*Split, error) {
		per := CIFARChannels * CIFARHeight * CIFARWidth
		images := make([]float32, n*per)
		labels := make([]int32, n)
		for i := 0; i < n; i++ {
			class := i % CIFARClasses
			labels[i] = int32(class) //nolint:gosec // G115: class < 10
			img := images[i*per : (i+1)*per]
			for c := 0; c < CIFARChannels; c++ {
				base := 40 + 20*float64((class+c*3)%CIFARClasses)
				for y := 0; y < CIFARHeight; y++ {
					for x := 0; x < CIFARWidth; x++ {
						grad := float64(x) * float64(class%3) * 2
						v := base + grad + rng.NormFloat64()*8
						img[c*CIFARHeight*CIFARWidth+y*CIFARWidth+x] = float32(math.Max(0, math.Min(255, v)))
					}
				}
			}
		}
		return NewSplit(images, labels, CIFARChannels, CIFARHeight, CIFARWidth)
	}

	train, err := build(numTrain)
	if err != nil {
		return nil, err
	}
	test, err := build(numTest)
	if err != nil {
		return nil, err
	}
	return &Dataset{Train: train, Test: test, NumClasses: CIFARClasses}, nil
}
