package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithLevel(WarnLevel))

	l.Debug("should be dropped", nil)
	l.Info("also dropped", nil)
	assert.Empty(t, buf.String())

	l.Warn("kept", nil)
	assert.Contains(t, buf.String(), "kept")
}

func TestSimpleLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithLevel(DebugLevel), WithJSON(true))

	l.Info("run started", map[string]interface{}{"run_id": "abc123"})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "run started", decoded["msg"])
	assert.Equal(t, "abc123", decoded["run_id"])
	assert.Equal(t, "INFO", decoded["level"])
}

func TestSimpleLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := New(WithWriter(&buf), WithLevel(DebugLevel), WithJSON(true))
	child := base.With(map[string]interface{}{"component": "runner"})

	child.Info("dispatch", map[string]interface{}{"test_id": "t1"})

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "runner", decoded["component"])
	assert.Equal(t, "t1", decoded["test_id"])
}
