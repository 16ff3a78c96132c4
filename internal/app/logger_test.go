package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "JSON"})

	logger.Debug("hidden")
	logger.Info("ready", "port", 8080)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ready", entry["msg"])
	assert.Equal(t, "production", entry["env"])
	assert.Contains(t, entry, "source")
}

func TestLoggerTextDebugOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{AppEnv: "development"}).Debug("scan decoded")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), `msg="scan decoded"`)
}
