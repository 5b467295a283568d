// Package log is a thin context-aware wrapper around zap.
package log

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	logger *zap.Logger
	level  zap.AtomicLevel

	mu    sync.RWMutex
	hooks []Hook
}

// New builds a logger from the config. The trace hook is always installed.
func New(cfg Config) *Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == EncodingConsole {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, newWriteSyncer(cfg), level)

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(2)}
	if cfg.IncludeStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	if cfg.Name != "" {
		zl = zl.With(zap.String("service", cfg.Name))
	}

	return &Logger{
		logger: zl,
		level:  level,
		hooks:  []Hook{HookFunc(traceFields)},
	}
}

func newWriteSyncer(cfg Config) zapcore.WriteSyncer {
	switch cfg.Output {
	case OutputStderr:
		return zapcore.Lock(os.Stderr)
	case OutputFile:
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDays,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		})
	default:
		return zapcore.Lock(os.Stdout)
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// AddHook registers a hook applied to every subsequent entry.
func (l *Logger) AddHook(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hooks = append(l.hooks, hook)
}

func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.level.Enabled(level)
}

func (l *Logger) Sync() error {
	return l.logger.Sync()
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	if !l.level.Enabled(level) {
		return
	}

	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()

	for _, hook := range hooks {
		fields = hook.Apply(ctx, msg, fields...)
	}

	if ce := l.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

var global atomic.Pointer[Logger]

//nolint:gochecknoinits // Default logger until the config is loaded.
func init() {
	global.Store(New(DefaultConfig()))
}

func SetGlobalLogger(logger *Logger) {
	if logger == nil {
		return
	}

	global.Store(logger)
}

func GetGlobalLogger() *Logger {
	return global.Load()
}

// DebugEnabled reports whether debug entries are written. Use it to guard expensive fields.
func DebugEnabled(_ context.Context) bool {
	return global.Load().Enabled(zapcore.DebugLevel)
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	global.Load().log(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	global.Load().log(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	global.Load().log(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	global.Load().log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Fatalf logs at error level and exits the process.
func Fatalf(ctx context.Context, format string, args ...any) {
	global.Load().log(ctx, zapcore.ErrorLevel, fmt.Sprintf(format, args...), nil)
	_ = global.Load().Sync()

	os.Exit(1)
}
