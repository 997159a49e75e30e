package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotstore/internal/ports"
)

var _ ports.Logger = (*LogrusLogger)(nil)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		" error ": LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLogrusLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: LevelInfo, Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := context.Background()
	log.Debug(ctx, "hidden")
	log.WithComponent("sqlite").Error(ctx, errors.New("disk full"), "write failed", map[string]interface{}{"symbol": "AAPL"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1, "debug is below the configured level")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "write failed", entry["message"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, "sqlite", entry["component"])
	assert.Equal(t, "disk full", entry["error"])
}

func TestLogrusLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: LevelDebug, Output: &buf})
	require.NoError(t, err)

	log.Info(context.Background(), "schema ready", map[string]interface{}{"table": "spot_1h"})
	assert.Contains(t, buf.String(), "schema ready")
	assert.Contains(t, buf.String(), "table=spot_1h")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
}
