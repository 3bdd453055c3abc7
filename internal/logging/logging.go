package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Level is a logrus level name: debug, info, warn, error. Defaults to info.
	Level string
	// File, when non-empty, additionally writes rotated logs to this path.
	// Used by serve mode; CLI one-shots log to stderr only.
	File string
	// MaxSizeMB caps a single log file before rotation. Defaults to 20.
	MaxSizeMB int
	// MaxBackups caps retained rotated files. Defaults to 5.
	MaxBackups int
}

// New builds a configured logrus logger.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 20
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 5
		}
		_ = os.MkdirAll(filepath.Dir(opts.File), 0700)
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}

	return log
}

// Discard returns a logger that swallows everything. Handy in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
