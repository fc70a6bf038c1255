package telemetry

import (
	"bufio"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"plantwatch/internal/model"
)

type staticHistory []model.Sample

func (h staticHistory) Snapshot() []model.Sample {
	out := make([]model.Sample, len(h))
	copy(out, h)
	return out
}

func TestExportWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 4, 8, 14, 11, 25, 0, time.Local)
	var hist staticHistory
	for i := 0; i < 25; i++ {
		hist = append(hist, model.Sample{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Raw:       float64(i),
			Smoothed:  33.3333 + float64(i)*1.0049,
		})
	}
	exp := NewExporter(dir, hist, nil)
	exp.now = func() time.Time { return base.Add(time.Minute) }

	path, err := exp.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "2025-04-08_14-12-25.csv" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != len(hist)+1 {
		t.Fatalf("expected %d lines, got %d", len(hist)+1, len(lines))
	}
	if lines[0] != "timestamp,green_percentage" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "2025-04-08 14:11:25,33.33" {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	for i, line := range lines[1:] {
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			t.Fatalf("row %d malformed: %q", i, line)
		}
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			t.Fatalf("row %d value: %v", i, err)
		}
		if math.Abs(v-hist[i].Smoothed) > 0.005 {
			t.Fatalf("row %d value %v too far from %v", i, v, hist[i].Smoothed)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestExportEmptyHistoryWritesHeader(t *testing.T) {
	dir := t.TempDir()
	path, err := NewExporter(dir, staticHistory(nil), nil).Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "timestamp,green_percentage\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestExportFailureIsExportError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	hist := staticHistory{{Timestamp: time.Now(), Smoothed: 1}}
	_, err := NewExporter(blocker, hist, nil).Export()
	var ee *ExportError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if len(hist.Snapshot()) != 1 {
		t.Fatalf("history must be untouched")
	}
}
