package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONHandlerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("tick failed", "err", "boom")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "tick failed" || rec["err"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "text").Info("started", "interval", "1s")
	if !strings.Contains(buf.String(), "msg=started") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}
