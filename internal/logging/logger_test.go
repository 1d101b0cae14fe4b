package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.Info("✅ 座標を処理しました", "key", "40.7128,-74.0060")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "✅ 座標を処理しました", entry["msg"])
	assert.Equal(t, "40.7128,-74.0060", entry["key"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text")
	logger.V(1).Info("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger = New(&buf, "debug", "text")
	logger.V(1).Info("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger = New(&buf, "error", "text")
	logger.Info("hidden")
	logger.Error(errors.New("boom"), "failed")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "boom")
}
