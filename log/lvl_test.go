package log

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stderr
	os.Stderr = w
	fn()
	require.NoError(t, w.Close())
	os.Stderr = old

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestLvlVisibility(t *testing.T) {
	defer SetDebugVisible(1)
	defer SetShowTime(false)

	SetDebugVisible(1)
	out := captureStderr(t, func() { Lvl2("should be hidden") })
	assert.Empty(t, out)

	SetDebugVisible(2)
	out = captureStderr(t, func() { Lvl2("should be visible") })
	assert.Contains(t, out, "should be visible")
}

func TestWarnErrorAlwaysShown(t *testing.T) {
	SetDebugVisible(0)
	defer SetDebugVisible(1)

	out := captureStderr(t, func() { Warn("careful") })
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "W :")

	out = captureStderr(t, func() { Error("broken") })
	assert.Contains(t, out, "broken")
	assert.Contains(t, out, "E :")
}

func TestDiagnosticIncludesHostAndPid(t *testing.T) {
	msg := diagnostic("boom")
	assert.True(t, strings.Contains(msg, "pid="))
	assert.True(t, strings.Contains(msg, "host="))
	assert.True(t, strings.Contains(msg, "boom"))
}
