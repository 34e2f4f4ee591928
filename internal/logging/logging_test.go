package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Options{Level: "warn", JSON: true, Out: &buf}), "harvest")
	l.Info().Msg("dropped")
	l.Warn().Str("profile", "A").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "harvest", line["component"])
	assert.Equal(t, "A", line["profile"])
	assert.Equal(t, "chat-harvest", line["app"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Out: &buf})
	l.Info().Int("new", 2).Msg("profile done")
	assert.Contains(t, buf.String(), "profile done")
	assert.Contains(t, buf.String(), "new=2")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}
