package logger

import (
	"context"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	atomic := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atomic)
	return &ZapLogger{logger: zap.New(core).Sugar(), level: atomic}, logs
}

func TestZapLogger_ContextFields(t *testing.T) {
	// Arrange
	log, logs := newObserved(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), interfaces.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, interfaces.ActorIDKey, "operator-7")

	// Act
	log.InfoWithContext(ctx, "imported", interfaces.LogField{Key: "external_id", Value: "CJ-1"})

	// Assert
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "CJ-1", fields["external_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "operator-7", fields["actor_id"])
}

func TestZapLogger_SetLevel(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)
	child := log.WithField("component", "import")

	log.SetLevel(interfaces.WarnLevel)
	child.Info("dropped")
	child.Warn("kept")

	assert.Equal(t, interfaces.WarnLevel, log.GetLevel())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, "import", logs.All()[0].ContextMap()["component"])
}

func TestGetLoggerLevel(t *testing.T) {
	assert.Equal(t, interfaces.DebugLevel, GetLoggerLevel("debug"))
	assert.Equal(t, interfaces.ErrorLevel, GetLoggerLevel("error"))
	assert.Equal(t, interfaces.InfoLevel, GetLoggerLevel("verbose"))
}
