package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelWarn)

	logger.Info("hidden %d", 1)
	assert.Empty(t, buf.String())

	logger.Warn("visible %s", "warning")
	assert.Contains(t, buf.String(), "visible warning")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelDebug).With("Estimator")

	logger.Debug("iteration %d", 3)
	assert.Contains(t, buf.String(), `"component":"Estimator"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelTrace, ParseLogLevel("trace"))
	assert.Equal(t, LogLevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("bogus"))
}
