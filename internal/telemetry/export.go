package telemetry

import (
	"bufio"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
)

const (
	fileTimeLayout = "2006-01-02_15-04-05"
	rowTimeLayout  = "2006-01-02 15:04:05"
)

var csvHeader = []string{"timestamp", "green_percentage"}

// Snapshotter hands out a copy of the recorded samples.
type Snapshotter interface {
	Snapshot() []model.Sample
}

// Exporter writes the full history to a timestamped CSV file. Exports are
// serialized and each one replaces the file atomically.
type Exporter struct {
	dir     string
	history Snapshotter
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewExporter(dir string, history Snapshotter, logger *slog.Logger) *Exporter {
	return &Exporter{dir: dir, history: history, logger: logger, now: time.Now}
}

// Export writes <dir>/<export time>.csv and returns its path.
func (e *Exporter) Export() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	samples := e.history.Snapshot()
	path := filepath.Join(e.dir, e.now().Local().Format(fileTimeLayout)+".csv")
	err := e.write(path, samples)
	metrics.ObserveExport(err)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("export failed", "path", path, "err", err)
		}
		return "", err
	}
	if e.logger != nil {
		e.logger.Info("history exported", "path", path, "rows", len(samples))
	}
	return path, nil
}

func (e *Exporter) write(path string, samples []model.Sample) (err error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return &ExportError{Op: "mkdir", Path: e.dir, Err: err}
	}
	tmp, err := os.CreateTemp(e.dir, ".export-*.csv.tmp")
	if err != nil {
		return &ExportError{Op: "create", Path: e.dir, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err := WriteCSV(buf, samples); err != nil {
		return &ExportError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := buf.Flush(); err != nil {
		return &ExportError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &ExportError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ExportError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &ExportError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// WriteCSV writes the header and one row per sample, smoothed value with two decimals.
func WriteCSV(w io.Writer, samples []model.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, 2)
	for _, s := range samples {
		row[0] = s.Timestamp.Local().Format(rowTimeLayout)
		row[1] = strconv.FormatFloat(s.Smoothed, 'f', 2, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
