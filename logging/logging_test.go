package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"Warn", slog.LevelWarn, false},
		{"WARNING", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInit_UnknownLevel(t *testing.T) {
	err := Init(false, Options{Level: "LOUD"})
	assert.ErrorContains(t, err, "unknown log level")
}

func TestTUIMode(t *testing.T) {
	require.NoError(t, Init(true, Options{Level: "DEBUG", Format: "text"}))

	slog.Info("Initial log")

	var tuiPane bytes.Buffer
	require.NoError(t, SetOutput(&tuiPane))
	assert.Contains(t, tuiPane.String(), "Initial log", "buffered record should be flushed on SetOutput")

	slog.Info("Live log")
	assert.Contains(t, tuiPane.String(), "Live log")

	BufferOutput()
	slog.Info("Buffered log")
	assert.NotContains(t, tuiPane.String(), "Buffered log")

	// Swallow the leftover on stderr.
	require.NoError(t, SetOutput(&bytes.Buffer{}))
	require.NoError(t, Close())
}

func TestFileLogging(t *testing.T) {
	logFile := t.TempDir() + "/blinkd.log"

	require.NoError(t, Init(true, Options{Level: "INFO", Format: "json", File: logFile}))

	slog.Info("HW log", "key", "value")
	slog.Debug("filtered out")

	require.NoError(t, Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	assert.Contains(t, string(content), `"msg":"HW log"`)
	assert.Contains(t, string(content), `"key":"value"`)
	assert.NotContains(t, string(content), "filtered out")
	assert.Equal(t, 1, strings.Count(string(content), "HW log"), "record must be written to the file exactly once")
}

func TestStderrFallback(t *testing.T) {
	require.NoError(t, Init(true, Options{Level: "DEBUG", Format: "text"}))

	slog.Info("Shutdown log")

	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	var wg sync.WaitGroup
	wg.Add(1)
	var capturedOutput string
	go func() {
		defer wg.Done()
		buf := make([]byte, 4096)
		n, _ := r.Read(buf)
		capturedOutput = string(buf[:n])
	}()

	closeErr := Close()
	w.Close()
	wg.Wait()
	os.Stderr = oldStderr

	require.NoError(t, closeErr)
	assert.Contains(t, capturedOutput, "Shutdown log")
}
