package logger

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is re-exported so callers do not need to import logrus for WithFields.
type Fields = logrus.Fields

var (
	std = newStd(os.Stderr)

	logFile     *os.File
	logDir      string
	currentDay  string
	logMu       sync.Mutex
	fileLogging bool
)

func newStd(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return l
}

// Init enables daily log files under dir. An empty dir keeps stderr only.
func Init(dir string) error {
	if dir == "" {
		return nil
	}
	// Given /var/lib/lumauth, write to /var/lib/lumauth/logs.
	// Given .../logs, keep it as-is.
	resolved := dir
	if path.Base(filepath.ToSlash(dir)) != "logs" {
		resolved = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(resolved, 0o700); err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	logDir = resolved
	fileLogging = true
	if err := rotateLocked(time.Now()); err != nil {
		fileLogging = false
		return err
	}
	std.AddHook(fileHook{})
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	fileLogging = false
}

// SetLevel accepts logrus level names ("debug", "info", "warn", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// SetOutput redirects the console output, mainly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func WithFields(f Fields) *logrus.Entry {
	return std.WithFields(f)
}

func Debug(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	std.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// fileHook mirrors entries into the current day's file without color.
type fileHook struct{}

var fileFormatter = &logrus.TextFormatter{
	DisableColors:   true,
	FullTimestamp:   true,
	TimestampFormat: "2006/01/02 15:04:05",
}

func (fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (fileHook) Fire(e *logrus.Entry) error {
	line, err := fileFormatter.Format(e)
	if err != nil {
		return err
	}
	logMu.Lock()
	defer logMu.Unlock()
	if !fileLogging {
		return nil
	}
	if err := rotateLocked(e.Time); err != nil {
		return err
	}
	if logFile != nil {
		_, _ = logFile.Write(line)
	}
	return nil
}

func rotateLocked(t time.Time) error {
	if logDir == "" {
		return nil
	}
	day := t.Format("2006-01-02")
	if logFile != nil && currentDay == day {
		return nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	filePath := filepath.Join(logDir, day+".log")
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	logFile = f
	currentDay = day
	return nil
}
