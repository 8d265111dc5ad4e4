package lrfinder

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// File names inside a finder's save directory.
const (
	CurveFile = "lr_curve.csv"
	MetaFile  = "lr_curve.yaml"
	PlotFile  = "lr_schedule.png"
)

// ErrNoCurve is returned when a directory holds no persisted curve.
var ErrNoCurve = errors.New("lrfinder: no persisted curve")

type curveMeta struct {
	Scale   Scale   `yaml:"scale"`
	MinLR   float64 `yaml:"min_lr"`
	MaxLR   float64 `yaml:"max_lr"`
	Steps   int     `yaml:"steps"`
	Samples int     `yaml:"samples"`
}

// SaveCurve writes the curve samples as CSV and its sweep parameters as YAML
// into dir, creating dir if needed. Existing files are replaced.
func SaveCurve(fs afero.Fs, dir string, c *Curve) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	samples := c.Samples
	if samples == nil {
		samples = []Sample{}
	}
	var csvBuf bytes.Buffer
	if err := gocsv.Marshal(&samples, &csvBuf); err != nil {
		return fmt.Errorf("encode curve: %w", err)
	}

	meta, err := yaml.Marshal(curveMeta{
		Scale:   c.Scale,
		MinLR:   c.MinLR,
		MaxLR:   c.MaxLR,
		Steps:   c.Steps,
		Samples: len(c.Samples),
	})
	if err != nil {
		return fmt.Errorf("encode curve metadata: %w", err)
	}

	if err := writeFile(fs, filepath.Join(dir, CurveFile), csvBuf.Bytes()); err != nil {
		return err
	}
	return writeFile(fs, filepath.Join(dir, MetaFile), meta)
}

// LoadCurve reads a curve written by SaveCurve. It returns ErrNoCurve when
// either file is missing.
func LoadCurve(fs afero.Fs, dir string) (*Curve, error) {
	metaPath := filepath.Join(dir, MetaFile)
	csvPath := filepath.Join(dir, CurveFile)

	raw, err := afero.ReadFile(fs, metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoCurve, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metaPath, err)
	}
	var meta curveMeta
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metaPath, err)
	}

	f, err := fs.Open(csvPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoCurve, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", csvPath, err)
	}
	defer f.Close()

	curve := &Curve{
		Scale: meta.Scale,
		MinLR: meta.MinLR,
		MaxLR: meta.MaxLR,
		Steps: meta.Steps,
	}
	if meta.Samples == 0 {
		return curve, nil
	}
	if err := gocsv.Unmarshal(f, &curve.Samples); err != nil {
		return nil, fmt.Errorf("decode %s: %w", csvPath, err)
	}
	if len(curve.Samples) != meta.Samples {
		return nil, fmt.Errorf("decode %s: got %d samples, metadata says %d", csvPath, len(curve.Samples), meta.Samples)
	}
	return curve, nil
}

func writeFile(fs afero.Fs, path string, data []byte) error {
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
