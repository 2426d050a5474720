// Package logging builds the prefixed loggers used across the terminal.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileLogger returns a logger with the given bracketed prefix writing
// to both stderr and a size-rotated log file. Rotation keeps the data
// directory from filling up on a terminal that runs for months.
func NewFileLogger(path, prefix string) *log.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return log.New(io.MultiWriter(os.Stderr, rotator), prefix, log.LstdFlags)
}

// NewStderrLogger returns a logger with the given prefix writing to
// stderr only, for commands where a log file would be noise.
func NewStderrLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
