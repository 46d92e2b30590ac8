package config

import (
	"io"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a logger writing to console and, when a file is
// configured, to a size-rotated log file. The returned closer releases the
// file and is safe to call when there is none.
func (l Log) NewLogger(console io.Writer) (logging.Logger, io.Closer, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, nil, err
	}
	if l.File == "" {
		return logging.New(level, console, l.Suppress), nopCloser{}, nil
	}

	fileLog := &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
	return logging.New(level, io.MultiWriter(fileLog, console), l.Suppress), fileLog, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
