package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orneryd/capitalroutes/pkg/config"
)

func TestNew(t *testing.T) {
	t.Run("console", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Level: "info", Format: "console"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("json debug", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(config.LoggingConfig{Level: "loud", Format: "console"})
		assert.Error(t, err)
	})

	t.Run("must new falls back", func(t *testing.T) {
		assert.NotNil(t, MustNew(config.LoggingConfig{Level: "loud"}))
	})
}

func TestBadgerLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bl := NewBadgerLogger(zap.New(core))

	bl.Errorf("disk %s", "full")
	bl.Warningf("slow %d", 3)
	bl.Infof("compaction")
	bl.Debugf("noise")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "disk full", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, "badger", entries[0].LoggerName)
}
