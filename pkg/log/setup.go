package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// NewLogger creates the console logger used by every command.
// An invalid level is reported on the logger itself and info is used instead.
func NewLogger(out io.Writer, levelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", levelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// TeeToFile mirrors everything log writes into path, truncating it first.
// The returned closer restores the console-only output and closes the file.
func TeeToFile(log *logrus.Logger, path string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file '%s': %w", path, err)
	}
	console := log.Out
	log.SetOutput(io.MultiWriter(console, file))
	return &teeCloser{log: log, console: console, file: file}, nil
}

type teeCloser struct {
	log     *logrus.Logger
	console io.Writer
	file    *os.File
}

func (c *teeCloser) Close() error {
	c.log.SetOutput(c.console)
	return c.file.Close()
}
