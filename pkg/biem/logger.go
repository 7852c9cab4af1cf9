package biem

import (
	"fmt"
	"log/slog"
)

// Logger is the logging seam used throughout pkg/biem and pkg/knowledge,
// following the same small-interface-over-slog convention as the teacher's
// chatgear package.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type slogLogger struct{}

// DefaultLogger returns a Logger backed by the standard library's slog
// default handler.
func DefaultLogger() Logger { return slogLogger{} }

func (slogLogger) Debugf(format string, args ...any) { slog.Debug("biem: " + fmt.Sprintf(format, args...)) }
func (slogLogger) Infof(format string, args ...any)  { slog.Info("biem: " + fmt.Sprintf(format, args...)) }
func (slogLogger) Warnf(format string, args ...any)  { slog.Warn("biem: " + fmt.Sprintf(format, args...)) }
func (slogLogger) Errorf(format string, args ...any) { slog.Error("biem: " + fmt.Sprintf(format, args...)) }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func orDefault(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
