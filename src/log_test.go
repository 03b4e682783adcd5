package v23

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptWritesDailyFile(t *testing.T) {
	var dir = t.TempDir()

	var w, err = NewTranscriptWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	var n, writeErr = w.Write([]byte("Hello"))
	require.NoError(t, writeErr)
	assert.Equal(t, 5, n)

	_, writeErr = w.Write([]byte(" line"))
	require.NoError(t, writeErr)

	var name = time.Now().Format("2006-01-02") + ".log"
	var contents, readErr = os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, readErr)
	assert.Equal(t, "Hello line", string(contents))
}

func TestTranscriptAppendsAcrossReopen(t *testing.T) {
	var dir = t.TempDir()

	var w, err = NewTranscriptWriter(dir)
	require.NoError(t, err)
	_, err = w.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = NewTranscriptWriter(dir)
	require.NoError(t, err)
	_, err = w.Write([]byte(" second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var name = time.Now().Format("2006-01-02") + ".log"
	var contents, readErr = os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, readErr)
	assert.Equal(t, "first second", string(contents))
}

func TestTranscriptRejectsMissingDirectory(t *testing.T) {
	var _, err = NewTranscriptWriter(filepath.Join(t.TempDir(), "nowhere"))
	assert.Error(t, err)
}

func TestTranscriptRejectsFileAsDirectory(t *testing.T) {
	var dir = t.TempDir()
	var file = filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	var _, err = NewTranscriptWriter(file)
	assert.Error(t, err)
}
