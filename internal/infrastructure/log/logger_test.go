package log

import (
	"context"
	"testing"

	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitDefault(t *testing.T) {
	require.NoError(t, InitDefault())
	Default().Error("test init default")
}

func TestLogger_With(t *testing.T) {
	l := Default()

	l1 := l.With(zap.Uint("subscription_id", 1))
	l1.Info("evaluating subscription")

	l2 := l.Named("sweep").With(zap.String("alert_kind", "temp_high"))
	l2.Info("alert triggered")

	assert.NotSame(t, l1.Logger, l2.Logger)
}

func TestLogLevel(t *testing.T) {
	t.Cleanup(func() { viper.Set(config.ServiceLogLevel, "") })

	viper.Set(config.ServiceLogLevel, "debug")
	assert.Equal(t, zapcore.DebugLevel, logLevel().Level())

	viper.Set(config.ServiceLogLevel, "nonsense")
	assert.Equal(t, zapcore.InfoLevel, logLevel().Level())
}

func TestLogger_WithSpan(t *testing.T) {
	l := Default()
	assert.Same(t, l, l.WithSpan(context.Background()))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	assert.NotSame(t, l, l.WithSpan(ctx))
}
