package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)

	log.Info().Str("session_id", "abc").Msg("Session created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "abc", entry["session_id"])
	require.Equal(t, "Session created", entry["message"])
	require.Contains(t, entry, "time")
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", FormatJSON, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	require.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	require.NotZero(t, buf.Len())
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("", FormatConsole, &buf)
	require.NoError(t, err)

	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("loud", FormatJSON, nil)
	require.Error(t, err)

	_, err = New("info", "xml", nil)
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel(" WARN ")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, lvl)
}

func TestNewSplit_RoutesBySeverity(t *testing.T) {
	var out, errOut bytes.Buffer
	log, err := NewSplit("debug", &out, &errOut)
	require.NoError(t, err)

	log.Info().Msg("routine")
	log.Error().Msg("broken")

	require.Contains(t, out.String(), "routine")
	require.NotContains(t, out.String(), "broken")
	require.Contains(t, errOut.String(), "broken")
	require.NotContains(t, errOut.String(), "routine")
}
