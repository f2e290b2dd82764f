// Package zap implements diffset.Logger on go.uber.org/zap.
package zap

import (
	"context"
	"fmt"
	"sort"

	"github.com/fwojciec/diffset"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Compile-time interface verification.
var _ diffset.Logger = (*Logger)(nil)

// Logger adapts a zap logger to diffset.Logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger wraps an existing zap logger.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log}
}

// New builds a logger writing to stderr. level is a zap level name such as
// "debug" or "warn"; format is "json" or "console".
func New(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q: must be json or console", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewLogger(log), nil
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.log.Sync()
}

func (l *Logger) Debug(_ context.Context, msg string, fields map[string]any) {
	l.log.Debug(msg, toFields(fields)...)
}

func (l *Logger) Info(_ context.Context, msg string, fields map[string]any) {
	l.log.Info(msg, toFields(fields)...)
}

func (l *Logger) Warn(_ context.Context, msg string, fields map[string]any) {
	l.log.Warn(msg, toFields(fields)...)
}

func (l *Logger) Error(_ context.Context, msg string, err error, fields map[string]any) {
	l.log.Error(msg, append(toFields(fields), zap.Error(err))...)
}

// toFields converts fields in key order so output is deterministic.
func toFields(fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
