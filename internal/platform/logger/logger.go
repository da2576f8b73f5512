package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the configuration for the logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

var (
	globalLogger *zap.Logger
	mu           sync.Mutex
)

// New builds a zap logger from the provided configuration.
func New(cfg Config) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	format := strings.ToLower(cfg.Format)
	if format != "console" {
		format = "json"
	}

	// shorter callers and clock-only time when a human reads the output
	if format == "console" {
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := parseLevel(cfg.Level)

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		Encoding:          format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: level > zapcore.DebugLevel,
	}

	return zapConfig.Build()
}

// Initialize sets up the global logger using the provided configuration.
func Initialize(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	globalLogger = l
	mu.Unlock()

	return l, nil
}

// Get returns the global logger, or a no-op logger before Initialize.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Get().Sync()
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
