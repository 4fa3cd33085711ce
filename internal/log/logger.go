package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with printf-style helpers and colour for console output
type Logger struct {
	*logrus.Logger
	cyan *color.Color
}

// New creates a new logger writing to stderr
func New() *Logger {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a logger writing to w. Level is info unless DEBUG=true.
func NewWithWriter(w io.Writer) *Logger {
	logger := &Logger{
		Logger: logrus.New(),
		cyan:   color.New(color.FgCyan),
	}
	logger.SetOutput(w)

	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006/01/02 15:04:05",
		FullTimestamp:   true,
		ForceColors:     !color.NoColor,
		DisableColors:   color.NoColor,
		DisableSorting:  true,
	})

	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// SetLevelName sets the level from a config string such as "debug" or "warn".
// Unknown names leave the level unchanged and return an error.
func (l *Logger) SetLevelName(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	l.SetLevel(lvl)
	return nil
}

// Scenario returns an entry tagged with the scenario name
func (l *Logger) Scenario(name string) *logrus.Entry {
	return l.WithField("scenario", name)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.Logger.Debug(fmt.Sprintf(format, v...))
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.Logger.Info(fmt.Sprintf(format, v...))
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.Logger.Warn(fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.Logger.Error(fmt.Sprintf(format, v...))
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Logger.Fatal(fmt.Sprintf(format, v...))
}

// IsDebugEnabled reports whether debug logging is on
func (l *Logger) IsDebugEnabled() bool {
	return l.GetLevel() >= logrus.DebugLevel
}

// Path formats a file path in console output
func (l *Logger) Path(s string) string { return l.cyan.Sprint(s) }
