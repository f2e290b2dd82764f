package diffset

import "context"

// Logger is the structured logging interface used throughout the module.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]any)
	Info(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// NopLogger discards all log entries.
type NopLogger struct{}

func (NopLogger) Debug(context.Context, string, map[string]any)        {}
func (NopLogger) Info(context.Context, string, map[string]any)         {}
func (NopLogger) Warn(context.Context, string, map[string]any)         {}
func (NopLogger) Error(context.Context, string, error, map[string]any) {}
