package config

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoggingLevelsPerWriter(t *testing.T) {
	var console, file bytes.Buffer
	l := newLogging(logrus.New(), &console, &file)
	l.SetLevels(logrus.WarnLevel, logrus.DebugLevel)

	l.logger.Debug("debug line")
	l.logger.Warn("warn line")

	assert.NotContains(t, console.String(), "debug line")
	assert.Contains(t, console.String(), "warn line")
	assert.Contains(t, file.String(), "debug line")
	assert.Contains(t, file.String(), "warn line")
}

func TestLoggingSetLevelsAtRuntime(t *testing.T) {
	var console, file bytes.Buffer
	l := newLogging(logrus.New(), &console, &file)
	l.SetLevels(logrus.InfoLevel, logrus.InfoLevel)

	l.logger.Debug("hidden")
	assert.NotContains(t, file.String(), "hidden")

	l.SetLevels(logrus.InfoLevel, logrus.TraceLevel)
	l.logger.Debug("shown")
	assert.Contains(t, file.String(), "shown")
	assert.NotContains(t, console.String(), "shown")
	assert.Equal(t, logrus.TraceLevel, l.logger.GetLevel())
}
