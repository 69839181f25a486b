package ui

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHandler_FansOut(t *testing.T) {
	var text, json bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&text, nil),
		slog.NewJSONHandler(&json, nil),
	)

	log := slog.New(h)
	log.Info("sync started", "blocks", 42)

	assert.Contains(t, text.String(), "sync started")
	assert.Contains(t, text.String(), "blocks=42")
	assert.Contains(t, json.String(), `"msg":"sync started"`)
	assert.Contains(t, json.String(), `"blocks":42`)
}

func TestMultiHandler_RespectsLevel(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	require.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	log := slog.New(h)
	log.Debug("details")

	assert.Contains(t, debug.String(), "details")
	assert.Empty(t, info.String(), "records below a handler's level are skipped")
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(slog.NewTextHandler(&buf, nil))

	log := slog.New(h).With("session", "abc123")
	log.Info("checkpoint")

	assert.Contains(t, buf.String(), "session=abc123")
}
