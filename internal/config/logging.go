package config

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logging routes logrus output to the console and a rotating log file, each
// with its own minimum level.
type Logging struct {
	logger  *logrus.Logger
	console *writerHook
	file    *writerHook
	closer  io.Closer
}

// SetupLogging configures the standard logrus logger from s.
func SetupLogging(s *Settings) *Logging {
	file := &lumberjack.Logger{
		Filename:   s.LogFile(),
		MaxSize:    s.LogMaxSize(), // megabytes
		MaxBackups: s.LogBackups(),
	}
	l := newLogging(logrus.StandardLogger(), os.Stdout, file)
	l.closer = file
	l.SetLevels(s.ConsoleLevel(), s.FileLevel())
	return l
}

func newLogging(logger *logrus.Logger, console, file io.Writer) *Logging {
	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	logger.ReplaceHooks(logrus.LevelHooks{})

	l := &Logging{
		logger:  logger,
		console: &writerHook{Writer: console},
		file:    &writerHook{Writer: file},
	}
	logger.AddHook(l.console)
	logger.AddHook(l.file)
	return l
}

// SetLevels changes the minimum console and file levels.
func (l *Logging) SetLevels(console, file logrus.Level) {
	l.console.setMin(console)
	l.file.setMin(file)
	l.logger.SetLevel(max(console, file))

	l.logger.WithFields(logrus.Fields{
		"function": "Logging.SetLevels",
		"console":  console,
		"file":     file,
	}).Debug("Log levels applied")
}

// Close flushes and closes the log file.
func (l *Logging) Close() {
	if l.closer != nil {
		_ = l.closer.Close()
	}
}

// writerHook writes logs to the specified writer for entries at or above
// its minimum level.
type writerHook struct {
	Writer io.Writer

	mu  sync.RWMutex
	min logrus.Level
}

func (h *writerHook) setMin(level logrus.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.min = level
}

func (h *writerHook) Fire(e *logrus.Entry) error {
	h.mu.RLock()
	threshold := h.min
	h.mu.RUnlock()
	if e.Level > threshold {
		return nil
	}

	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = h.Writer.Write([]byte(line))
	return err
}

func (h *writerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
