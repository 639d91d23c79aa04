package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetFormatter(&logrus.JSONFormatter{})
}

func SetupLogger(level string) {
	Logger.SetLevel(ParseLevel(level))
}

// ParseLevel maps a config level name to logrus, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch level {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// RedirectToFile sends log output to path; used while the terminal UI owns stdout.
func RedirectToFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	prev := Logger.Out
	Logger.SetOutput(f)
	return func() {
		Logger.SetOutput(prev)
		f.Close()
	}, nil
}
