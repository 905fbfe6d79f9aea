package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setupLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetWriterForAll(buf)
	SetVerbose(false)
	t.Cleanup(func() {
		SetWriterForAll(os.Stdout)
		SetVerbose(false)
	})
	return buf
}

func TestInfoIsWritten(t *testing.T) {
	buf := setupLogger(t)

	Info("packed %d bundles", 3)

	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "packed 3 bundles")
}

func TestDebugRequiresVerbose(t *testing.T) {
	buf := setupLogger(t)

	Debug("hidden")
	assert.Empty(t, buf.String())

	SetVerbose(true)
	assert.True(t, IsVerbose())
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestAddWriterForAllTees(t *testing.T) {
	buf := setupLogger(t)
	extra := &bytes.Buffer{}
	AddWriterForAll(extra)

	GetLogFromLevel(WARN)("careful")

	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, extra.String(), "WARN")
}

func TestFatalExits(t *testing.T) {
	setupLogger(t)
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Fatal("boom")

	assert.Equal(t, 1, code)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ERROR", ERROR.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
