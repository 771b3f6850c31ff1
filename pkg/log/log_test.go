package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"WARN", WarnLevel},
		{" error ", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"trace", InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestInitJSON(t *testing.T) {
	prev := Logger
	defer func() {
		Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}()

	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	logger := ForTask(WithComponent("registry"), 7, "h1")
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "exactly one JSON line")
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, float64(7), entry["task_id"])
	assert.Equal(t, "h1", entry["host"])
}

func TestForTaskWithoutHost(t *testing.T) {
	var buf bytes.Buffer
	logger := ForTask(zerolog.New(&buf), 3, "")
	logger.Info().Msg("x")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "host")
	assert.Equal(t, float64(3), entry["task_id"])
}
