// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/rendercore/internal/config"
)

// -- Test Helper Functions --

// initBuffered initializes the global logger with console output captured
// in a buffer. The logger is reset when the test ends.
func initBuffered(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console output colors the level", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "rendercore",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("compositor").Info("Layers rebuilt.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "rendercore.compositor.")
		assert.Contains(t, out, "Layers rebuilt.")
	})

	t.Run("unknown colors leave the level plain", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "console", Colors: config.ColorConfig{Warn: "mauve"}})
		GetLogger().Warn("plain")
		Sync()
		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), "\x1b[")
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})
		GetLogger().Warn("Commit dropped.", zap.String("url", "http://a.test/"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Commit dropped.", entry["msg"])
		assert.Equal(t, "http://a.test/", entry["url"])
	})

	t.Run("level filters entries", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("file sink gets json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "render.log")
		initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &entry))
		assert.Equal(t, "This should go to the file.", entry["msg"])
	})

	t.Run("initializes once", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
		assert.Nil(t, globalLogger.Load(), "the fallback is not stored")
	})

	t.Run("global logger after initialization", func(t *testing.T) {
		initBuffered(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestFrameTiming(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	FrameTiming(logger, "raster", time.Now(), time.Hour)
	FrameTiming(logger, "draw", time.Now().Add(-time.Second), time.Millisecond)
	FrameTiming(logger, "composite", time.Now(), 0)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "raster", entries[0].ContextMap()["stage"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "draw", entries[1].ContextMap()["stage"])
	assert.Contains(t, entries[1].ContextMap(), "budget")
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
}
