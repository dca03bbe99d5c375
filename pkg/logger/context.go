package logger

import (
	"context"
	"log/slog"
)

type ctxKey string

const loggerKey ctxKey = "logger"

// Into stores l as the context logger; later With/From calls derive from it.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// With returns a new context that includes a logger with fields.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, l)
}

// From returns the logger stored in context, or default if missing.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return L()
}

// WithPayment stamps the identifiers every payment log line carries, so the
// gateway and compensation stages inherit them without repeating the fields.
func WithPayment(ctx context.Context, intentID int64, orderID string) context.Context {
	return With(ctx, "intent_id", intentID, "order_id", orderID)
}
