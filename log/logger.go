package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger the logger used by the client, the methods match the levels
// supported by the underlying implementation
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// ZapLogger the logger backed by the zap's sugared logger
type ZapLogger struct {
	*zap.SugaredLogger
}

// New creates the production logger, the level limits the output
func New(level zapcore.Level) (*ZapLogger, error) {
	conf := zap.NewProductionConfig()
	conf.Level = zap.NewAtomicLevelAt(level)
	l, err := conf.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{SugaredLogger: l.Sugar()}, nil
}

// Wrap wraps the existed zap logger
func Wrap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{SugaredLogger: l.Sugar()}
}

// Sync flushes the buffered entries
func (l *ZapLogger) Sync() error {
	return l.SugaredLogger.Sync()
}
