package core

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "vkstage 📦 ",
				})
				l.SetLevel(log.InfoLevel)
				// The helpers below add a frame on top of the caller.
				l.SetCallerOffset(1)
				singleton = &logger{l}
			})
	}
	return singleton
}

// ConfigureLogging applies the logging section of the configuration to the
// shared logger. When a file is configured, output goes to both stderr and a
// rotating log file.
func ConfigureLogging(cfg LoggingConfig) error {
	l := getLogger()

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	l.SetLevel(level)

	if cfg.Prefix != "" {
		l.SetPrefix(cfg.Prefix)
	}

	if cfg.File != "" {
		l.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}
	return nil
}

// SetLogOutput redirects the shared logger, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
