package utils

import (
	"os"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// SetupLogger configures the standard logrus logger from LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to debug, unknown formats to text.
func SetupLogger() {
	ConfigureLogger(logger.StandardLogger(), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

func ConfigureLogger(l *logger.Logger, levelStr, format string) {
	level, err := logger.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = logger.DebugLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(format) {
	case "json":
		l.SetFormatter(&logger.JSONFormatter{})
	default:
		l.SetFormatter(&logger.TextFormatter{
			FullTimestamp: true,
		})
	}
}
