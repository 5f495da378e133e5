package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey struct{}

// ToContext returns a copy of ctx carrying l.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx or the global logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}

	return global
}

// WithName adds a name segment to the logger in ctx.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}

// WithKV attaches a single key-value pair to the logger in ctx.
func WithKV(ctx context.Context, key string, value any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(key, value))
}

// WithFields attaches every key-value pair of fields to the logger in ctx.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return ToContext(ctx, FromContext(ctx).With(args...))
}
