// Package logger is a module-tagged leveled logger on top of logrus.
//
//	logger.Init(logger.INFO, os.Stderr, true)
//	logger.Warn("Detection", "detector failed: %v", err)
//
// Every entry carries a module=<name> field.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel is the severity threshold.
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levels = [...]struct {
	name   string
	logrus logrus.Level
}{
	DEBUG:  {"DEBUG", logrus.DebugLevel},
	INFO:   {"INFO", logrus.InfoLevel},
	WARN:   {"WARN", logrus.WarnLevel},
	ERROR:  {"ERROR", logrus.ErrorLevel},
	SILENT: {"SILENT", logrus.PanicLevel},
}

func (l LogLevel) valid() bool { return l >= DEBUG && l <= SILENT }

// String returns the upper-case level name.
func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levels[l].name
}

// Logger writes module-tagged entries at or above its level.
type Logger struct {
	level  atomic.Int32
	base   *logrus.Logger
	output io.Writer
}

var (
	std  atomic.Pointer[Logger]
	once sync.Once
)

// Init installs the process-wide logger. Later calls are ignored; use
// SetLevel to change verbosity afterwards.
func Init(level LogLevel, output io.Writer, useColor bool) {
	once.Do(func() {
		std.Store(New(level, output, useColor))
	})
}

// New creates a Logger writing text entries to output (stderr when nil).
func New(level LogLevel, output io.Writer, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetFormatter(&logrus.TextFormatter{
		ForceColors:     useColor,
		DisableColors:   !useColor,
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05.000000",
	})

	l := &Logger{base: base, output: output}
	l.SetLevel(level)
	return l
}

// SetLevel changes the threshold. SILENT discards all output, including
// entries logged directly through logrus; any other level restores it.
func (l *Logger) SetLevel(level LogLevel) {
	if !level.valid() {
		level = INFO
	}
	l.level.Store(int32(level))
	l.base.SetLevel(levels[level].logrus)
	if level == SILENT {
		l.base.SetOutput(io.Discard)
	} else {
		l.base.SetOutput(l.output)
	}
}

// GetLevel returns the threshold.
func (l *Logger) GetLevel() LogLevel {
	return LogLevel(l.level.Load())
}

func (l *Logger) logf(level LogLevel, module, format string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}
	entry := l.base.WithField("module", module)
	entry.Logf(levels[level].logrus, format, args...)
}

// Debug logs a formatted message for module at DEBUG.
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.logf(DEBUG, module, format, args...)
}

// Info logs a formatted message for module at INFO.
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.logf(INFO, module, format, args...)
}

// Warn logs a formatted message for module at WARN.
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.logf(WARN, module, format, args...)
}

// Error logs a formatted message for module at ERROR.
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.logf(ERROR, module, format, args...)
}

// SetLevel changes the process-wide threshold.
func SetLevel(level LogLevel) {
	if l := std.Load(); l != nil {
		l.SetLevel(level)
	}
}

// GetLevel returns the process-wide threshold (INFO before Init).
func GetLevel() LogLevel {
	if l := std.Load(); l != nil {
		return l.GetLevel()
	}
	return INFO
}

// Debug logs through the process-wide logger. It is a no-op before Init,
// like Info, Warn and Error.
func Debug(module string, format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Debug(module, format, args...)
	}
}

// Info logs through the process-wide logger.
func Info(module string, format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Info(module, format, args...)
	}
}

// Warn logs through the process-wide logger.
func Warn(module string, format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Warn(module, format, args...)
	}
}

// Error logs through the process-wide logger.
func Error(module string, format string, args ...interface{}) {
	if l := std.Load(); l != nil {
		l.Error(module, format, args...)
	}
}

// ParseLevel accepts debug, info, warn(ing), error and silent/none in any case.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}
