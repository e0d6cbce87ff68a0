package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONWithLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "staging", line["env"])
	assert.Contains(t, line, "source")
}

func TestNewLoggerTextDefault(t *testing.T) {
	buf := new(bytes.Buffer)
	newLogger(nil, buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
