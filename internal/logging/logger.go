package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// RequestIDKey is the context key the HTTP middleware stores request ids under.
const RequestIDKey ctxKey = "request_id"

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop()}
}

func (l *Logger) WithRequestID(ctx context.Context) *zap.Logger {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return l.With(zap.String("request_id", reqID))
	}
	return l.Logger
}

// BadgerLogger adapts a zap logger to badger's Logger interface.
type BadgerLogger struct {
	s *zap.SugaredLogger
}

func NewBadgerLogger(l *zap.Logger) *BadgerLogger {
	return &BadgerLogger{s: l.Named("badger").Sugar()}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{})   { b.s.Errorf(format, args...) }
func (b *BadgerLogger) Warningf(format string, args ...interface{}) { b.s.Warnf(format, args...) }
func (b *BadgerLogger) Infof(format string, args ...interface{})    { b.s.Infof(format, args...) }
func (b *BadgerLogger) Debugf(format string, args ...interface{})   { b.s.Debugf(format, args...) }
