package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
)

func TestSinkRecordUpdatesStatusAndQueues(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(DispatcherOptions{Publishers: []Publisher{pub}, Encoder: encodePlain})
	d.Start()
	status := metrics.NewStore(4)
	sink := NewSink("synthetic", status, d, NewExporter(t.TempDir(), staticHistory(nil), nil), nil)

	s := model.Sample{Timestamp: time.Now(), Raw: 12.346, Smoothed: 11}
	st := sink.Record(s, []model.Alert{{Kind: model.AlertRelativeDrop}})
	if st.Alert != 1 || !st.RelativeDrop || st.RawPercentage != 12.35 {
		t.Fatalf("unexpected status %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if pub.count() != 1 || string(pub.payloads[0]) != "11.00,1" {
		t.Fatalf("unexpected payloads %q", pub.payloads)
	}

	got, ok := status.Get("synthetic")
	if !ok || got.Status.GreenPercentage != 11 || got.Ticks != 1 {
		t.Fatalf("status store not updated: %+v", got)
	}
}

func TestDefaultConfigPublishesEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.DefaultConfig().Publish
	if cfg.Enabled {
		t.Fatalf("default config is expected to have no broker")
	}
	d, err := NewConfiguredDispatcher(context.Background(), cfg, "synthetic", nil, logger)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	d.Start()
	sink := NewSink("synthetic", metrics.NewStore(4), d, NewExporter(t.TempDir(), staticHistory(nil), nil), nil)

	for i := 0; i < 3; i++ {
		s := model.Sample{Timestamp: time.Now(), Raw: 50, Smoothed: 50}
		sink.Record(s, nil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := strings.Count(buf.String(), `"msg":"status"`); got != 3 {
		t.Fatalf("expected one status per record, got %d in %s", got, buf.String())
	}
}
