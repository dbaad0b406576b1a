package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	root = zerolog.New(&buf)

	Named("turn").Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "expected valid JSON log line")
	assert.Equal(t, "turn", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestForSessionTagsBoth(t *testing.T) {
	var buf bytes.Buffer
	root = zerolog.New(&buf)

	ForSession("transport", "sess-123").Warn().Msg("reconnect")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "expected valid JSON log line")
	assert.Equal(t, "transport", line["component"])
	assert.Equal(t, "sess-123", line["session_id"])
}

func TestInitDefaultsToInfoOnInvalidLevel(t *testing.T) {
	Init("not-a-level", false)
	assert.Equal(t, zerolog.InfoLevel, root.GetLevel(), "expected fallback to info level")
}
