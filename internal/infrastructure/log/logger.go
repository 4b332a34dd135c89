package log

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/okieraised/thermostat-alerts/internal/config"
	"github.com/okieraised/thermostat-alerts/internal/constants"
	"github.com/spf13/viper"
	"go.elastic.co/ecszap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

var (
	defaultOnce   sync.Once
	defaultLogger *zap.Logger
	defaultErr    error
)

// logLevel reads service.log_level; unknown values fall back to info.
func logLevel() zap.AtomicLevel {
	lvl, err := zapcore.ParseLevel(viper.GetString(config.ServiceLogLevel))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(lvl)
}

func serviceName() string {
	if name := viper.GetString(config.ServiceName); name != "" {
		return name
	}
	return constants.DefaultServiceName
}

// DefaultConfig returns a zap.Config configured with ECS-compatible encoders.
func DefaultConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig = ecszap.ECSCompatibleEncoderConfig(cfg.EncoderConfig)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.Level = logLevel()
	cfg.InitialFields = map[string]any{"service.name": serviceName()}
	return cfg
}

// InitDefault initializes the process-wide default logger once.
func InitDefault(opts ...zap.Option) error {
	defaultOnce.Do(func() {
		cfg := DefaultConfig()
		defaultLogger, defaultErr = cfg.Build(opts...)
	})
	return defaultErr
}

func MustInitDefault(opts ...zap.Option) {
	if err := InitDefault(opts...); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize default logger: %v\n", err)
		os.Exit(1)
	}
}

// Default returns the default logger, initializing it if needed. A failed
// build degrades to a no-op logger.
func Default() *Logger {
	if defaultLogger == nil {
		if err := InitDefault(); err != nil || defaultLogger == nil {
			return &Logger{zap.NewNop()}
		}
	}
	return &Logger{defaultLogger}
}

// Sync flushes any buffered logs on the default logger.
func Sync() error {
	if defaultLogger != nil {
		return defaultLogger.Sync()
	}
	return nil
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// WithSpan tags the logger with the trace and span ids of the span in ctx.
func (l *Logger) WithSpan(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace.id", sc.TraceID().String()),
		zap.String("span.id", sc.SpanID().String()),
	)
}
