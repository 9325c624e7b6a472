package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/polling-agent/pkg/config"
	"github.com/polling-agent/pkg/logger"
)

func TestLoggerAddsDefaultFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.GetLogger()
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(prev) })

	logger.SetDefaultComponent("agent")
	logger.Debug("debug msg")
	logger.Info("info msg", zap.String("pollster", "host.cpu"))
	logger.Warn("warn msg")
	logger.Error("error msg")

	require.Equal(t, 4, logs.Len())
	entry := logs.FilterMessage("info msg").All()[0]
	fields := entry.ContextMap()
	assert.Equal(t, "agent", fields["component"])
	assert.Equal(t, "host.cpu", fields["pollster"])
	assert.NotEmpty(t, fields["goid"])
	assert.Equal(t, "agent", logger.GetDefaultComponent())
}

func TestLoggerRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logger.GetLogger()
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(prev) })

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")

	assert.Equal(t, 1, logs.Len())
}

func TestInitWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	prev := logger.GetLogger()
	t.Cleanup(func() { logger.SetLogger(prev) })

	err := logger.Init(config.ZapLogConfig{
		Level:   "debug",
		Format:  "console",
		Path:    dir,
		MaxSize: 1,
		MaxAge:  1,
	})
	require.NoError(t, err)

	logger.Info("hello file")
	_ = logger.Sync()

	matches, err := filepath.Glob(filepath.Join(dir, "agent-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}
