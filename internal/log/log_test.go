package log

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/looplj/lifeline/internal/contexts"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	atomicLevel := zap.NewAtomicLevelAt(level)

	return &Logger{
		logger: zap.New(core),
		level:  atomicLevel,
		hooks:  []Hook{HookFunc(traceFields)},
	}, logs
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "shown", Int("count", 2))
	logger.Error(context.Background(), "failed", Cause(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0].Message)
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestLogger_HooksApplied(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.DebugLevel)
	logger.AddHook(HookFunc(func(ctx context.Context, msg string, fields ...Field) []Field {
		return append(fields, String("hooked", msg))
	}))

	ctx := contexts.WithTraceID(context.Background(), "at-hook")
	logger.Warn(ctx, "hello")

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "at-hook", fields["trace_id"])
	assert.Equal(t, "hello", fields["hooked"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestGlobalLogger(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	logger, logs := newObservedLogger(zapcore.DebugLevel)
	SetGlobalLogger(logger)
	SetGlobalLogger(nil)

	assert.True(t, DebugEnabled(context.Background()))

	Info(context.Background(), "global entry", Bool("ok", true))

	require.Equal(t, 1, logs.FilterMessage("global entry").Len())
}
