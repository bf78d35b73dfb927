// Package logger provides structured logging for quickload
package logger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global atomic.Pointer[zap.Logger]
	once   sync.Once
)

// contextKey is the type for context keys
type contextKey string

const (
	// JobIDKey is the context key for the transaction's job ID
	JobIDKey contextKey = "job_id"
	// PluginKey is the context key for the plugin type name
	PluginKey contextKey = "plugin"
	// PartitionKey is the context key for the partition index
	PartitionKey contextKey = "partition"
)

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Init initializes the global logger. Only the first call (including the
// implicit one made by Get) has an effect. If the configuration is invalid
// the error is returned and a production logger is installed instead.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		l, buildErr := newLogger(cfg)
		if buildErr != nil {
			err = buildErr
			l, _ = zap.NewProduction()
		}
		global.Store(l)
	})
	return err
}

// Setup builds a logger from cfg and installs it as the global logger,
// replacing the default one Get may have created already. Loggers derived
// before the call keep writing to the old one.
func Setup(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	once.Do(func() {})
	global.Store(l)
	return nil
}

// newLogger creates a new zap logger
func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the global logger, creating a JSON info logger on stderr if
// neither Init nor Setup ran.
func Get() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	_ = Init(Config{Level: "info", Encoding: "json", OutputPaths: []string{"stderr"}})
	return global.Load()
}

// WithContext returns a logger with context values
func WithContext(ctx context.Context) *zap.Logger {
	logger := Get()

	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		logger = logger.With(zap.String("job_id", jobID))
	}

	if plugin, ok := ctx.Value(PluginKey).(string); ok {
		logger = logger.With(zap.String("plugin", plugin))
	}

	if partition, ok := ctx.Value(PartitionKey).(int); ok {
		logger = logger.With(zap.Int("partition", partition))
	}

	return logger
}

// ContextWithJob returns a context carrying the job ID for WithContext.
func ContextWithJob(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// ContextWithPlugin returns a context carrying the plugin type name.
func ContextWithPlugin(ctx context.Context, plugin string) context.Context {
	return context.WithValue(ctx, PluginKey, plugin)
}

// ContextWithPartition returns a context carrying the partition index.
func ContextWithPartition(ctx context.Context, partition int) context.Context {
	return context.WithValue(ctx, PartitionKey, partition)
}

// Replace swaps the global logger, returning a function restoring the
// previous one. Tests use it with zaptest loggers.
func Replace(l *zap.Logger) func() {
	prev := Get()
	global.Store(l)
	return func() { global.Store(prev) }
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Get().Sync()
}
