// Package logging configures the process-wide logrus logger and provides
// gin middleware for request logging and panic recovery.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global logger. Debug switches the level; logFile,
// when non-empty, mirrors output to a size-rotated file next to stderr.
func Setup(debug bool, logFile string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if logFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotated))
	} else {
		log.SetOutput(os.Stderr)
	}
}
