package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestNew_LevelIsApplied(t *testing.T) {
	l, err := New(Config{Level: "warn", Format: "console"})
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestGet_BeforeInitialize(t *testing.T) {
	// never nil, so packages may log before main wires a real logger
	assert.NotNil(t, Get())
}
