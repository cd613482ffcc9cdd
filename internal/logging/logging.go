// Package logging wraps logrus with the rotation and formatting conventions
// the rest of Nubi shares: JSON in production, readable text in development,
// always duplicated to a rotating file on disk.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var std = logrus.New()

// Init configures the package logger. debug selects the development
// formatter; logDir, when non-empty, is created and given a rotated
// "nubid.log" sink alongside stdout.
func Init(debug bool, logDir string) error {
	var out io.Writer = os.Stdout

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "nubid.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	std.SetOutput(out)
	if debug {
		std.SetLevel(logrus.DebugLevel)
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		std.SetLevel(logrus.InfoLevel)
		std.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// Log returns a fresh entry on the package logger.
func Log() *logrus.Entry {
	return logrus.NewEntry(std)
}

// WithFields returns an entry pre-populated with the given fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}
