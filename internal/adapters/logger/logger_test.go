package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger writes to a buffer with colors disabled.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Info("loaded pipeline")
	lg.Warn("no agents declared")
	lg.Error(errors.New("boom"))

	assert.Equal(t, "loaded pipeline\n! no agents declared\n✗ Error: boom\n", buf.String())
}

func TestLogger_ErrorNil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_ErrorChain(t *testing.T) {
	lg, buf := newTestLogger(t)

	inner := zerr.With(zerr.New("database timeout"), "timeout_ms", 5000)
	outer := zerr.Wrap(inner, "failed to load run")
	lg.Error(zerr.With(outer, "run_id", "abc"))

	want := strings.Join([]string{
		"✗ Error: failed to load run run_id=abc",
		"",
		"  Caused by:",
		"    → database timeout timeout_ms=5000",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
}

func TestLogger_ErrorStandardCause(t *testing.T) {
	out := logger.FormatError(zerr.Wrap(errors.New("permission denied"), "failed to write state record"))
	assert.Equal(t, "Error: failed to write state record\n\n  Caused by:\n    → permission denied", out)
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Info("hello")
	lg.Error(errors.New("bad"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "hello", first["msg"])
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "operation failed", second["msg"])
	assert.Equal(t, "bad", second["error"])
}

func TestFormatError_MetadataOnStandardError(t *testing.T) {
	err := zerr.With(errors.New("disk full"), "path", "/tmp/x")
	assert.Equal(t, "Error: disk full path=/tmp/x", logger.FormatError(err))
}
