package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/BearBump/ShipNotify/config"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogConfig{Level: "warn", Format: "JSON"})

	l.Info("hidden")
	l.Warn("carrier reported exception", "tracking_number", "9400")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "carrier reported exception", rec["msg"])
	require.Equal(t, "9400", rec["tracking_number"])
}

func TestNew_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LogConfig{})

	l.Debug("hidden")
	l.Info("sms sent", "sid", "SM1")
	require.Contains(t, buf.String(), "msg=\"sms sent\"")
	require.Contains(t, buf.String(), "sid=SM1")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
