package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points the package at a temporary log directory and resets
// the process-wide session state.
func setupTestDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("AUTOPILOT_LOG_DIR", dir)

	reset := func() {
		logDir = ""
		initErr = nil
		initOnce = sync.Once{}
		sessionID = ""
		sessionIDOnce = sync.Once{}
		SetLevel(LevelDebug)
	}
	reset()
	t.Cleanup(reset)
	return dir
}

func TestNewLogger(t *testing.T) {
	dir := setupTestDir(t)

	logger, err := NewLogger("session")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "session", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))
	assert.True(t, strings.HasSuffix(logger.LogPath(), "-autopilot.log"))

	_, err = os.Stat(logger.LogPath())
	assert.NoError(t, err)
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("agent")
	require.NoError(t, err)
	defer logger.Close()

	logger.Debugf("Debug message %d", 1)
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)

	for _, pattern := range []string{
		"[agent] [DEBUG] Debug message 1",
		"[agent] [INFO] Info message",
		"[agent] [WARN] Warning message",
		"[agent] [ERROR] Error message",
	} {
		assert.Contains(t, string(content), pattern)
	}
}

func TestMultipleComponentsShareFile(t *testing.T) {
	setupTestDir(t)

	first, err := NewLogger("session")
	require.NoError(t, err)
	defer first.Close()
	second, err := NewLogger("agent")
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.SessionID(), second.SessionID())
	assert.Equal(t, first.LogPath(), second.LogPath())

	first.Infof("from session")
	second.Infof("from agent")

	content, err := os.ReadFile(first.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "[session]")
	assert.Contains(t, string(content), "[agent]")
}

func TestSetLevel(t *testing.T) {
	setupTestDir(t)

	var buf bytes.Buffer
	logger := WithOutput("retry", &buf)

	SetLevel(LevelWarn)
	logger.Debugf("hidden")
	logger.Infof("hidden")
	logger.Warnf("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[retry] [WARN] shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "", want: LevelDebug},
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetLogDirectory(t *testing.T) {
	dir := setupTestDir(t)

	got, err := GetLogDirectory()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("close")
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Infof("nothing") })
}
