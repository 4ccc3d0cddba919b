package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

type logEntry map[string]any

func TestLoggerWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	l.Info().Str("prompt", "todo-app").Str("state", "build").Msg("building the app")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "building the app", entry["message"])
	require.Equal(t, "todo-app", entry["prompt"])
	require.Equal(t, "info", entry["level"])
}

func TestLoggerDebugRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(Options{Level: "info", Writer: buf})
	require.NoError(t, err)

	l.Debug().Msg("this should not appear")
	require.Equal(t, "", strings.TrimSpace(buf.String()))
}

func TestLoggerErrorIncludesContext(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	l.Error().Err(errors.New("boom")).Msg("build worker crashed")

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "boom", entry["error"])
	require.Equal(t, "error", entry["level"])
}

func TestLoggerInvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)
}

func TestLoggerHumanReadable(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(Options{Level: "info", HumanReadable: true, Writer: buf})
	require.NoError(t, err)

	l.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetupInstallsGlobal(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	buf := &bytes.Buffer{}
	require.NoError(t, Setup(Options{Level: "warn", Writer: buf}))
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
