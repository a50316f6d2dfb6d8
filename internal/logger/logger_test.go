package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesPerRunLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	log, path, close, err := New(dir, false)
	require.NoError(t, err)
	require.NotNil(t, log)

	log.Info("deployment starting")
	close()

	assert.DirExists(t, dir)
	assert.Contains(t, filepath.Base(path), "berth-")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deployment starting")
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNew_DebugReachesFileEvenWhenConsoleIsQuiet(t *testing.T) {
	dir := t.TempDir()

	log, path, close, err := New(dir, false)
	require.NoError(t, err)

	log.Debug("probing remote host")
	close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "probing remote host")
}
