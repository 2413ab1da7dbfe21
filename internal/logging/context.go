package logging

import "context"

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	predictionIDKey
)

// WithLogger stores logger in ctx for FromContext
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored by WithLogger, or the global one
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return global
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request or job id, or "" when absent
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithPredictionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, predictionIDKey, id)
}

// WithContext returns l tagged with the request and prediction ids in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var kv []interface{}
	if id := RequestIDFromContext(ctx); id != "" {
		kv = append(kv, "request_id", id)
	}
	if id, _ := ctx.Value(predictionIDKey).(string); id != "" {
		kv = append(kv, "prediction_id", id)
	}
	return l.With(kv...)
}

// Ctx is FromContext(ctx).WithContext(ctx)
func Ctx(ctx context.Context) *Logger {
	return FromContext(ctx).WithContext(ctx)
}
