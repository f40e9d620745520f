package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.With(String("type", "Device")).Debug("registered",
		Uint16("version", 3),
		Int("fields", 2),
		Error(errors.New("boom")),
		Strings("names", []string{"a", "b"}),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "registered", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "Device", ctx["type"])
	assert.EqualValues(t, 3, ctx["version"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := FromZap(zap.New(core))

	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))
	l.Info("dropped")
	l.Warn("kept")
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, LevelWarn, l.GetLevel())
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.False(t, l.Enabled(LevelError))
	assert.Equal(t, LevelSilent, l.GetLevel())
	l.Error("nothing happens")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug": LevelDebug, "INFO": LevelInfo, "": LevelInfo,
		"warning": LevelWarn, "error": LevelError, "off": LevelSilent,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
