package observability_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/veiltext-cli/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogOptions{Level: "info", Format: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("saved", zap.String("doc_id", "3"))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "saved", entry["msg"])
	assert.Equal(t, "veiltext", entry["logger"])
	assert.Equal(t, "3", entry["doc_id"])
}

func TestNewLoggerDefaultsToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogOptions{Level: "loud"}, &buf)
	logger.Info("quiet")
	logger.Warn("visible")
	_ = logger.Sync()
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "veiltext.log")
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogOptions{Level: "debug", File: path}, &buf)
	logger.Debug("to file")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"to file"`)
}
