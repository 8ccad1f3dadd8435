// Package logger builds the service logger and carries request-scoped loggers in contexts.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options tunes NewLogger. Zero values keep environment defaults.
type Options struct {
	// Level overrides the environment level: debug, info, warn, error.
	Level string
	// Service and Version are attached to every entry when set.
	Service string
	Version string
}

// NewLogger creates a zap logger for env.
// prod writes sampled JSON with ISO8601 times; local, dev and docker write colored console output.
func NewLogger(env string, opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	fields := make(map[string]any, 2)
	if opts.Service != "" {
		fields["service"] = opts.Service
	}
	if opts.Version != "" {
		fields["version"] = opts.Version
	}
	if len(fields) > 0 {
		cfg.InitialFields = fields
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// ForRun returns the request logger from ctx (or fallback) tagged with one analysis run.
func ForRun(ctx context.Context, fallback *zap.Logger, runID, userID string) *zap.Logger {
	return FromContextOr(ctx, fallback).With(
		zap.String("run_id", runID),
		zap.String("user_id", userID),
	)
}
