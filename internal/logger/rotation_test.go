package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "test.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRotatingWriterWrite(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)

	data := []byte("test log message\n")
	n, err := rw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, rw.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test log message")

	_, err = rw.Write(data)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriterRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	// zero MB rotates on every write after the first
	rw, err := NewRotatingWriter(logFile, 0, 7, true)
	require.NoError(t, err)

	_, err = rw.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	compressed, err := filepath.Glob(filepath.Join(dir, "test.log.*.gz"))
	require.NoError(t, err)
	assert.Len(t, compressed, 1)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
}

func TestCompressFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0644))

	require.NoError(t, compressFile(testFile))

	_, err := os.Stat(testFile + ".gz")
	assert.NoError(t, err)
	_, err = os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	oldFile := logFile + ".20200101-120000.000"
	freshFile := logFile + ".20990101-120000.000"
	require.NoError(t, os.WriteFile(oldFile, []byte("old log"), 0644))
	require.NoError(t, os.WriteFile(freshFile, []byte("fresh log"), 0644))

	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	rw := &RotatingWriter{filename: logFile, maxAge: 7}
	rw.cleanup(time.Now())

	_, err := os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshFile)
	assert.NoError(t, err)
}
