// Package logger provides structured JSON logging with PII redaction.
//
// Call sites pass alternating key/value pairs:
//
//	logger.Info("nudge scheduled", "trainer_id", tid, "client_id", cid)
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the default logger.
type Options struct {
	Level      string // debug, info, warn, error
	File       string // optional path; rotated with lumberjack
	MaxSizeMB  int
	MaxBackups int
	RedactPII  bool
}

var std = newLogger(os.Stderr, true)

type entryLogger struct {
	l         *logrus.Logger
	redactPII bool
}

func newLogger(w io.Writer, redact bool) *entryLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "msg",
		},
	})
	return &entryLogger{l: l, redactPII: redact}
}

// Configure replaces the default logger settings.
func Configure(o Options) error {
	var w io.Writer = os.Stderr
	if o.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    nonZero(o.MaxSizeMB, 100),
			MaxBackups: nonZero(o.MaxBackups, 5),
			Compress:   true,
		})
	}
	next := newLogger(w, o.RedactPII)
	if o.Level != "" {
		lvl, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("log level %q: %w", o.Level, err)
		}
		next.l.SetLevel(lvl)
	}
	std = next
	return nil
}

// SetOutput redirects the default logger, mainly for tests.
func SetOutput(w io.Writer) { std.l.SetOutput(w) }

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { std.log(logrus.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { std.log(logrus.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { std.log(logrus.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { std.log(logrus.ErrorLevel, msg, fields...) }

// Printf logs a preformatted INFO line, for "[Component] ..." style messages
// from long-running workers.
func Printf(format string, args ...interface{}) {
	std.log(logrus.InfoLevel, fmt.Sprintf(format, args...))
}

func (e *entryLogger) log(level logrus.Level, msg string, fields ...interface{}) {
	if !e.l.IsLevelEnabled(level) {
		return
	}
	f := make(logrus.Fields, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if err, ok := val.(error); ok && err != nil {
			val = err.Error()
		}
		if e.redactPII {
			val = redactPIIValue(key, fmt.Sprintf("%v", val))
		}
		f[key] = val
	}
	if e.redactPII {
		msg = emailRegex.ReplaceAllStringFunc(msg, RedactEmail)
	}
	e.l.WithFields(f).Log(level, msg)
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"):
		return RedactEmail(val)
	case strings.Contains(key, "phone"):
		return RedactPhone(val)
	case strings.Contains(key, "content") || strings.Contains(key, "body"):
		return fmt.Sprintf("[%d chars]", len(val))
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
