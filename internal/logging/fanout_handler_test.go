package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRoutesByLevel(t *testing.T) {
	var fileBuf, consoleBuf bytes.Buffer
	file := slog.NewJSONHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	console := slog.NewJSONHandler(&consoleBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	h := newFanoutHandler(file, console)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts the level")
	}
	logger := slog.New(h).With(slog.String(FieldSession, "s1"))

	logger.Debug("trial encoded")
	if fileBuf.Len() == 0 {
		t.Fatal("expected debug record in file handler")
	}
	if consoleBuf.Len() != 0 {
		t.Fatal("console handler should not receive debug records")
	}

	logger.Warn("count mismatch")
	if !bytes.Contains(consoleBuf.Bytes(), []byte(`"session":"s1"`)) {
		t.Fatalf("expected session attr on console output, got %s", consoleBuf.String())
	}
}
