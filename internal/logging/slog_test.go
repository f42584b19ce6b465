package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlogLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log := NewSlogLogger(base).With("component", "guard")
	log.Info(context.Background(), "locked", "reason", "spam")

	out := buf.String()
	require.Contains(t, out, "component=guard")
	require.Contains(t, out, "reason=spam")
	require.Contains(t, out, "locked")
}

func TestDiscardDoesNotPanic(t *testing.T) {
	log := Discard()
	log.Debug(context.Background(), "x")
	log.Info(context.Background(), "x")
	log.Warn(context.Background(), "x")
	log.Error(context.Background(), "x")
	log.With("a", 1).Info(context.Background(), "x")
}
