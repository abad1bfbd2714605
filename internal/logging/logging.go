// Package logging builds the service's zap loggers.
package logging

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options holds logger configuration
type Options struct {
	Level       string
	Format      string // "json" or "console"
	Environment string
	Service     string
	Version     string

	// File enables a rotated JSON file sink next to stdout
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type contextKey string

const loggerKey contextKey = "logger"

// New builds a logger writing to stdout and, when configured, to a rotated file
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	var encoderConfig zapcore.EncoderConfig
	if opts.Environment == "production" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	var stdoutEncoder zapcore.Encoder
	if opts.Format == "console" {
		if opts.Environment != "production" {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		stdoutEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		stdoutEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
	}

	if opts.File != "" {
		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.TimeKey = "timestamp"
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
			}),
			level,
		))
	}

	fields := []zap.Field{zap.String("service", opts.Service)}
	if opts.Environment != "" {
		fields = append(fields, zap.String("environment", opts.Environment))
	}
	if opts.Version != "" {
		fields = append(fields, zap.String("version", opts.Version))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Fields(fields...)), nil
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// FromContext retrieves the logger from the context, or fallback when none is set
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
