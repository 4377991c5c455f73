package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext returns a child of ctx that carries l.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx. Without one it falls back
// to slog.Default(), so callers never see nil.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With derives a logger from the one in ctx (or base, when ctx carries
// none) with the extra attributes, and stores it in the returned context.
func With(ctx context.Context, base *slog.Logger, args ...any) (context.Context, *slog.Logger) {
	parent, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || parent == nil {
		parent = base
	}
	if parent == nil {
		parent = slog.Default()
	}
	l := parent.With(args...)
	return WithContext(ctx, l), l
}
