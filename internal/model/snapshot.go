package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/golang/snappy"
)

// snapshotVersion is bumped on incompatible changes to the file layout.
const snapshotVersion = 1

// ErrSnapshotMismatch reports a snapshot whose tensors do not fit the model.
var ErrSnapshotMismatch = errors.New("model: snapshot does not match parameters")

// Named pairs a parameter with its stable name.
type Named[B tensor.Backend] struct {
	Name  string
	Param *nn.Parameter[B]
}

// snapshotFile is the gob payload inside the snappy stream.
type snapshotFile struct {
	Version  int
	Created  time.Time
	Metadata map[string]string
	Tensors  []snapshotTensor
}

type snapshotTensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// SaveSnapshot writes params to path, replacing any previous file atomically.
//
// The file is a snappy-framed gob stream: a header with metadata followed by
// every tensor's name, shape and float32 data.
func SaveSnapshot[B tensor.Backend](path string, params []Named[B], metadata map[string]string) error {
	file := snapshotFile{
		Version:  snapshotVersion,
		Created:  time.Now().UTC(),
		Metadata: metadata,
		Tensors:  make([]snapshotTensor, 0, len(params)),
	}
	for _, p := range params {
		t := p.Param.Tensor()
		file.Tensors = append(file.Tensors, snapshotTensor{
			Name:  p.Name,
			Shape: slices.Clone([]int(t.Shape())),
			Data:  slices.Clone(t.Raw().AsFloat32()),
		})
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	w := snappy.NewBufferedWriter(tmp)
	if err := gob.NewEncoder(w).Encode(&file); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot into params, matching tensors by name.
//
// Every parameter must be present with the same shape.
func LoadSnapshot[B tensor.Backend](path string, params []Named[B]) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file snapshotFile
	if err := gob.NewDecoder(snappy.NewReader(f)).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}

	byName := make(map[string]snapshotTensor, len(file.Tensors))
	for _, t := range file.Tensors {
		byName[t.Name] = t
	}

	for _, p := range params {
		saved, ok := byName[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrSnapshotMismatch, p.Name)
		}
		t := p.Param.Tensor()
		if !slices.Equal(saved.Shape, []int(t.Shape())) {
			return nil, fmt.Errorf("%w: %q has shape %v, want %v", ErrSnapshotMismatch, p.Name, saved.Shape, t.Shape())
		}
		copy(t.Raw().AsFloat32(), saved.Data)
	}

	return file.Metadata, nil
}

// Save writes the network's parameters to path.
func (m *CIFARNet[B]) Save(path string, metadata map[string]string) error {
	return SaveSnapshot(path, m.NamedParameters(), metadata)
}

// Load restores the network's parameters from path.
func (m *CIFARNet[B]) Load(path string) (map[string]string, error) {
	return LoadSnapshot(path, m.NamedParameters())
}
