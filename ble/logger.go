package ble

import "github.com/sirupsen/logrus"

// Logger is the logging surface every long-lived cache object is
// constructed with: callers pass one in, components narrow it with
// ChildLogger instead of reaching for a package-level global.
type Logger interface {
	Debugf(format string, args ...interface{})
	Debug(args ...interface{})
	Infof(format string, args ...interface{})
	Info(args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Error(args ...interface{})

	// ChildLogger returns a Logger that includes fields on every entry, the
	// way linux/gatt/client.go tags a client logger with the peer address.
	ChildLogger(fields map[string]interface{}) Logger
}

type logrusLogger struct {
	*logrus.Entry
}

// NewLogger wraps a *logrus.Logger as a ble.Logger.
func NewLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
	}
	return logrusLogger{logrus.NewEntry(l)}
}

func (l logrusLogger) ChildLogger(fields map[string]interface{}) Logger {
	return logrusLogger{l.Entry.WithFields(fields)}
}

// NopLogger discards everything; useful for tests that don't want log noise
// but still need to satisfy a ble.Logger parameter.
func NopLogger() Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return NewLogger(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
