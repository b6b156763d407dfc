package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup("roundd", "test", Options{}, &buf)
	logger.Info("profile staked", "round", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "profile staked", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "roundd", line["service"])
	require.Equal(t, "test", line["env"])
	require.EqualValues(t, 3, line["round"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup("roundd", "", Options{Level: "warn"}, &buf)
	logger.Info("hidden")
	require.Zero(t, buf.Len())
	logger.Warn("shown")
	require.Contains(t, buf.String(), "shown")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestSetupWritesRotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "roundd.log")
	var buf bytes.Buffer
	logger := setup("roundd", "dev", Options{File: path}, &buf)
	logger.Error("custody swept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "custody swept")
	require.Contains(t, buf.String(), "custody swept")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authSecret", "hunter2").Value.String())
	require.Equal(t, "boom", MaskField("error", "boom").Value.String())
	require.Equal(t, "leveldb", MaskField(" Backend ", "leveldb").Value.String())
	require.Equal(t, "", MaskField("ownerKeyFile", "").Value.String())
}

func TestMaskFieldsKeepsSecretsOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	attrs := MaskFields("backend", "bolt", "authSecret", "hunter2", "ownerKeyFile", "/srv/owner.key", "dangling")
	require.Len(t, attrs, 3)

	logger.Info("starting", attrs...)
	out := buf.String()
	require.Contains(t, out, `"backend":"bolt"`)
	require.Contains(t, out, `"authSecret":"[REDACTED]"`)
	require.Contains(t, out, `"ownerKeyFile":"[REDACTED]"`)
	require.NotContains(t, out, "hunter2")
	require.NotContains(t, out, "owner.key")
	require.NotContains(t, out, "dangling")
}
