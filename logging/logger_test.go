package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "warn")

	l.Debug("should not appear", nil)
	l.Info("should not appear either", nil)
	l.Warn("visible", map[string]interface{}{"k": "v"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}

func TestWithComponentTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSONLogger(&buf, "debug")
	scoped := base.WithComponent("engine")

	scoped.Info("hello", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine", entry["component"])
}

func TestNoOpLoggerNeverPanics(t *testing.T) {
	var l NoOpLogger
	l.Info("x", nil)
	l.Error("x", nil)
	l.Warn("x", nil)
	l.Debug("x", nil)
}
