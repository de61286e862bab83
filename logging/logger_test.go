package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger           = (*SlogAdapter)(nil)
	_ Logger           = NoOpLogger{}
	_ Logger           = (*PersonaMeshLogger)(nil)
	_ ActionCallLogger = (*PersonaMeshLogger)(nil)
	_ ModelCallLogger  = (*PersonaMeshLogger)(nil)
)

func newBufferLogger(level LogLevel) (*PersonaMeshLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  level,
		Format: "text",
		Output: &buf,
	})
	return logger, &buf
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
}

func TestPersonaMeshLogger_LevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelWarn)

	logger.Debug("too quiet")
	logger.Info("still too quiet")
	logger.Warn("loud enough")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
}

func TestPersonaMeshLogger_WithConversation(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	scoped := logger.WithConversation("42", "room-secret")
	scoped.Info("handling")

	out := buf.String()
	assert.Contains(t, out, "conversation_id=42")
	assert.Contains(t, out, "room_id=room-secret")

	// Cloning: the parent logger is untouched.
	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "conversation_id")
}

func TestPersonaMeshLogger_WithComponentAndContext(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.WithComponent("pipeline").WithContext("agent", "Ava").Info("composed")

	out := buf.String()
	assert.Contains(t, out, "component=pipeline")
	assert.Contains(t, out, "agent=Ava")
}

func TestPersonaMeshLogger_LogActionCall(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogActionCall("setMood", 5*time.Millisecond, true, nil)
	out := buf.String()
	assert.Contains(t, out, "Action execution completed")
	assert.Contains(t, out, "action_name=setMood")
	assert.Contains(t, out, "success=true")

	buf.Reset()
	logger.LogActionCall("setMood", time.Millisecond, false, errors.New("boom"))
	out = buf.String()
	assert.Contains(t, out, "Action execution failed")
	assert.Contains(t, out, "error=boom")
}

func TestPersonaMeshLogger_LogModelCall(t *testing.T) {
	logger, buf := newBufferLogger(LogLevelInfo)

	logger.LogModelCall("gpt-4o", 12*time.Millisecond, true, nil)
	out := buf.String()
	assert.Contains(t, out, "Model call completed")
	assert.Contains(t, out, "model=gpt-4o")

	buf.Reset()
	logger.LogModelCall("gpt-4o", time.Millisecond, false, nil)
	assert.Contains(t, buf.String(), "Model call failed")
}

func TestNewLogger_DefaultConfig(t *testing.T) {
	require.NotNil(t, NewLogger(nil))
}
