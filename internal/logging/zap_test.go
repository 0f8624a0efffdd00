package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapLoggerFromCore(core), logs
}

func TestZapLogger_Levels(t *testing.T) {
	log, logs := newObservedLogger()
	ctx := context.Background()

	log.Debug(ctx, "dbg")
	log.Info(ctx, "inf")
	log.Warn(ctx, "wrn")
	log.Error(ctx, "err", "k", "v")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "v", entries[3].ContextMap()["k"])
}

func TestZapLogger_WithAndRequestID(t *testing.T) {
	log, logs := newObservedLogger()

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	log.With("module", "rest").Info(ctx, "hello")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rest", fields["module"])
	assert.Equal(t, "req-7", fields["request_id"])
}

func TestNewZapLogger_BadLevelFallsBackToInfo(t *testing.T) {
	l, err := NewZapLogger("not-a-level", true)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestErrorAttrs(t *testing.T) {
	assert.Nil(t, ErrorAttrs(nil))

	plain := ErrorAttrs(errors.New("boom"))
	assert.Equal(t, []any{"error", "boom"}, plain)

	err := oops.Code("IDENTITY_LOOKUP_FAILED").With("user_id", int64(3)).Errorf("db down")
	attrs := ErrorAttrs(err)
	assert.Contains(t, attrs, "IDENTITY_LOOKUP_FAILED")
	assert.Contains(t, attrs, "user_id")
}
