package logger

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestGetLogger(t *testing.T) {
	logger := GetLogger()
	assert.NotNil(t, logger)
	assert.IsType(t, &logrus.Logger{}, logger)
}

func TestWithName(t *testing.T) {
	entry := WithName("router")
	assert.NotNil(t, entry)
	assert.Equal(t, "router", entry.Data["name"])
}

func TestWithServer(t *testing.T) {
	entry := WithServer("session", "calc")
	assert.NotNil(t, entry)
	assert.Equal(t, "session", entry.Data["name"])
	assert.Equal(t, "calc", entry.Data["server"])
}

func TestWithFields(t *testing.T) {
	entry := WithFields(logrus.Fields{
		"tool":   "add",
		"server": "calc",
	})
	assert.NotNil(t, entry)
	assert.Equal(t, "add", entry.Data["tool"])
	assert.Equal(t, "calc", entry.Data["server"])
}

func TestSetLevel(t *testing.T) {
	originalLevel := defaultLogger.Level
	defer SetLevel(originalLevel)

	SetLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, defaultLogger.Level)

	SetLevel(logrus.WarnLevel)
	assert.Equal(t, logrus.WarnLevel, defaultLogger.Level)
}

func TestConfigureFromString(t *testing.T) {
	originalLevel := defaultLogger.Level
	originalOut := defaultLogger.Out
	originalEnv := os.Getenv("GO_ENV")
	defer func() {
		SetLevel(originalLevel)
		defaultLogger.Out = originalOut
		os.Setenv("GO_ENV", originalEnv)
	}()

	t.Run("test mode forces silent", func(t *testing.T) {
		os.Setenv("GO_ENV", "test")
		assert.NoError(t, ConfigureFromString("debug"))
	})

	t.Run("silent outside test mode", func(t *testing.T) {
		os.Setenv("GO_ENV", "")
		assert.NoError(t, ConfigureFromString("silent"))
	})

	t.Run("valid levels", func(t *testing.T) {
		os.Setenv("GO_ENV", "")
		for _, level := range []string{"trace", "debug", "info", "warn", "error"} {
			assert.NoError(t, ConfigureFromString(level), "level %s", level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		os.Setenv("GO_ENV", "")
		assert.Error(t, ConfigureFromString("chatty"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		os.Setenv("GO_ENV", "")
		assert.NoError(t, ConfigureFromString("DEBUG"))
		assert.NoError(t, ConfigureFromString("Info"))
	})
}
