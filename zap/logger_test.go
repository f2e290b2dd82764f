package zap_test

import (
	"context"
	"errors"
	"testing"

	dzap "github.com/fwojciec/diffset/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Levels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := dzap.NewLogger(zap.New(core))
	ctx := context.Background()

	logger.Debug(ctx, "parent diff entry not used by any file", map[string]any{"path": "UNUSED"})
	logger.Info(ctx, "diffset created", map[string]any{"id": "ds-1", "files": 2})
	logger.Warn(ctx, "retrying blob fetch", nil)
	logger.Error(ctx, "file failed validation", errors.New("hunk 1 did not apply"), map[string]any{"path": "README"})

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "UNUSED", entries[0].ContextMap()["path"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "diffset created", entries[1].Message)
	assert.Equal(t, "ds-1", entries[1].ContextMap()["id"])
	assert.EqualValues(t, 2, entries[1].ContextMap()["files"])

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Empty(t, entries[2].Context)

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	fields := entries[3].ContextMap()
	assert.Equal(t, "README", fields["path"])
	assert.Equal(t, "hunk 1 did not apply", fields["error"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	logger := dzap.NewLogger(zap.New(core))

	logger.Info(context.Background(), "ignored", nil)
	logger.Warn(context.Background(), "kept", nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("builds json logger", func(t *testing.T) {
		t.Parallel()

		logger, err := dzap.New("debug", "json")

		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("builds console logger", func(t *testing.T) {
		t.Parallel()

		logger, err := dzap.New("info", "console")

		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		t.Parallel()

		_, err := dzap.New("loud", "json")

		require.Error(t, err)
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		t.Parallel()

		_, err := dzap.New("info", "xml")

		require.Error(t, err)
	})
}
