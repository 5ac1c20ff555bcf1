package core

import (
	"context"

	"go.uber.org/zap"
)

// loggerKey is the context key a request-scoped *Logger is stored under.
// Mirrors the teacher's core.WithDefaultLogger(ctx, reqID) / core.Infof(ctx,
// ...) call shape, backed here by zap (the teacher's own direct go.mod
// dependency) instead of an external, out-of-tree implementation.
type loggerKeyType struct{}

var loggerKey loggerKeyType

// Logger wraps a *zap.SugaredLogger with the request-id field the router
// attaches at every pipeline boundary.
type Logger struct {
	sugar *zap.SugaredLogger
	reqID string
}

// NewLogger builds a production-style JSON logger. Construction happens once
// at process start, in cmd/qrouter's main, and is threaded through
// engine.New — never held in a package-level variable.
func NewLogger() (*Logger, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zl.Sugar()}, nil
}

// NewNopLogger returns a Logger that discards everything, used in tests.
func NewNopLogger() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// WithRequestID returns a context carrying a Logger annotated with reqID,
// mirroring the teacher's WithDefaultLogger.
func (l *Logger) WithRequestID(parent context.Context, reqID string) context.Context {
	child := &Logger{sugar: l.sugar.With("request_id", reqID), reqID: reqID}
	return context.WithValue(parent, loggerKey, child)
}

func loggerFromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return NewNopLogger()
}

// RequestIDFromContext returns the request id attached to ctx's Logger, or
// "" when none was attached.
func RequestIDFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l.reqID
	}
	return ""
}

func Infof(ctx context.Context, tpl string, args ...any) {
	loggerFromContext(ctx).sugar.Infof(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	loggerFromContext(ctx).sugar.Errorf(tpl, args...)
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	loggerFromContext(ctx).sugar.Debugf(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	loggerFromContext(ctx).sugar.Warnf(tpl, args...)
}

// Sync flushes any buffered log entries. Callers should defer it in main.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
