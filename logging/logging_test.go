package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.log")
	w, err := NewRotatingWriter(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.maxSize = 64
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() > 64 {
		t.Fatalf("expected rotated file to be small, got %d bytes", info.Size())
	}
}

func TestFanout_RespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	logger := slog.New(fanout{
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("component", "test")

	logger.Info("hello", "n", 1)
	logger.Warn("careful")

	if got := strings.Count(debugBuf.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 lines in debug handler, got %d", got)
	}
	if got := strings.Count(warnBuf.String(), "\n"); got != 1 {
		t.Fatalf("expected 1 line in warn handler, got %d", got)
	}

	var rec map[string]any
	if err := json.Unmarshal(warnBuf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["component"] != "test" || rec["msg"] != "careful" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
