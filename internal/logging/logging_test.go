package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriters_SplitsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := NewWithWriters(Options{Level: "info"}, &out, &errOut)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("progress")
	logger.Error("failure")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "progress")
	assert.NotContains(t, out.String(), "failure")
	assert.Contains(t, errOut.String(), "failure")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.Split(out.Bytes(), []byte("\n"))[0], &entry))
	assert.Equal(t, "progress", entry["msg"])
}

func TestNewWithWriters_LevelFiltersErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	logger, err := NewWithWriters(Options{Level: "warn", Development: true}, &out, &errOut)
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "loud")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "verbose"})
	assert.Error(t, err)
}
