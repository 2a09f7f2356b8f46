package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":       zerolog.InfoLevel,
		"debug":  zerolog.DebugLevel,
		"WARN":   zerolog.WarnLevel,
		"error":  zerolog.ErrorLevel,
		"chatty": zerolog.InfoLevel,
		"trace":  zerolog.TraceLevel,
		"info":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, Options{Format: "json", Level: "debug"}), "render")
	log.Debug().Str("host", "home").Msg("pass started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "render", entry["component"])
	assert.Equal(t, "home", entry["host"])
	assert.Equal(t, "pass started", entry["message"])
}

func TestNew_QuietDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Format: "json", Quiet: true})
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{})
	log.Info().Str("tag", "video-preview").Msg("mounted")
	assert.Contains(t, buf.String(), "mounted")
	assert.Contains(t, buf.String(), "tag=video-preview")
}

func TestOpenOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer

	w, closeFn, err := OpenOutput("", &stdout, &stderr)
	require.NoError(t, err)
	assert.Same(t, &stderr, w)
	assert.NoError(t, closeFn())

	w, _, err = OpenOutput("stdout", &stdout, &stderr)
	require.NoError(t, err)
	assert.Same(t, &stdout, w)

	path := filepath.Join(t.TempDir(), "cmarkup.log")
	for range 2 {
		w, closeFn, err = OpenOutput(path, &stdout, &stderr)
		require.NoError(t, err)
		log := New(w, Options{Format: "json"})
		log.Info().Msg("hello")
		require.NoError(t, closeFn())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte(`"message":"hello"`)))

	_, _, err = OpenOutput(filepath.Join(t.TempDir(), "missing", "x.log"), &stdout, &stderr)
	assert.Error(t, err)
}
