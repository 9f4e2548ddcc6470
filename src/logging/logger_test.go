package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestIsRateLimit(t *testing.T) {
	assert.False(t, IsRateLimit(nil))
	assert.True(t, IsRateLimit(errors.New("nearblocks: status 429")))
	assert.True(t, IsRateLimit(errors.New("rate_limit_exceeded")))
	assert.False(t, IsRateLimit(errors.New("status 500")))
}

func TestUpstreamLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	Upstream(log, errors.New("status 429"), "feed")
	Upstream(log, errors.New("connection reset"), "feed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
