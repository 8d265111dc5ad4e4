package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIFARNet_ForwardShape(t *testing.T) {
	backend := cpu.New()
	net := NewCIFARNet(10, backend)

	input := tensor.Zeros[float32](tensor.Shape{2, 3, 32, 32}, backend)
	out := net.Forward(input)

	assert.Equal(t, tensor.Shape{2, 10}, out.Shape())
	assert.Equal(t, 10, net.Classes())
}

func TestCIFARNet_ForwardRejectsWrongGeometry(t *testing.T) {
	backend := cpu.New()
	net := NewCIFARNet(10, backend)

	assert.Panics(t, func() {
		net.Forward(tensor.Zeros[float32](tensor.Shape{1, 1, 28, 28}, backend))
	})
}

func TestCIFARNet_Parameters(t *testing.T) {
	net := NewCIFARNet(10, cpu.New())

	named := net.NamedParameters()
	assert.Len(t, named, len(net.Parameters()))

	seen := map[string]bool{}
	for _, p := range named {
		assert.False(t, seen[p.Name], "duplicate name %s", p.Name)
		seen[p.Name] = true
	}

	// conv1 1216 + conv2 12832 + fc1 102528 + fc2 1290
	assert.Equal(t, 117866, CountParameters(net.Parameters()))
	assert.Contains(t, net.String(), "CIFARNet(")
}

func TestSnapshot_RoundTrip(t *testing.T) {
	backend := cpu.New()
	src := NewCIFARNet(10, backend)
	path := filepath.Join(t.TempDir(), "weights", "net.snap")

	require.NoError(t, src.Save(path, map[string]string{"epoch": "3"}))

	dst := NewCIFARNet(10, backend)
	meta, err := dst.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "3", meta["epoch"])

	srcParams, dstParams := src.NamedParameters(), dst.NamedParameters()
	for i := range srcParams {
		assert.Equal(t,
			srcParams[i].Param.Tensor().Raw().AsFloat32(),
			dstParams[i].Param.Tensor().Raw().AsFloat32(),
			srcParams[i].Name)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestSnapshot_Overwrite(t *testing.T) {
	backend := cpu.New()
	path := filepath.Join(t.TempDir(), "net.snap")

	require.NoError(t, NewCIFARNet(10, backend).Save(path, map[string]string{"epoch": "1"}))
	require.NoError(t, NewCIFARNet(10, backend).Save(path, map[string]string{"epoch": "2"}))

	meta, err := NewCIFARNet(10, backend).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", meta["epoch"])
}

func TestSnapshot_Mismatch(t *testing.T) {
	backend := cpu.New()
	path := filepath.Join(t.TempDir(), "net.snap")
	require.NoError(t, NewCIFARNet(10, backend).Save(path, nil))

	_, err := NewCIFARNet(5, backend).Load(path)
	assert.ErrorIs(t, err, ErrSnapshotMismatch)
}

func TestSnapshot_Missing(t *testing.T) {
	_, err := NewCIFARNet(10, cpu.New()).Load(filepath.Join(t.TempDir(), "none.snap"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
