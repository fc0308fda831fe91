// Package logging provides the leveled logger shared by all claude-bridge
// packages. It is a thin layer over logrus so call sites stay one import wide.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger = logrus.New()
	mu     sync.Mutex
)

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	logger.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the global log level. Unknown names fall back to info.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// EnableFileOutput mirrors log output into a rotating file in addition to
// stderr. Rotation keeps three compressed backups of 10MB each.
func EnableFileOutput(path string) {
	if path == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }

// WithError returns an entry carrying err under the standard "error" key.
func WithError(err error) *logrus.Entry {
	return logger.WithError(err)
}
