package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"plantwatch/internal/config"
	"plantwatch/internal/model"
)

func TestSaveSamplesPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(db, postgresDialect)
	ts := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(
		"INSERT INTO samples (ts, source, raw_value, smoothed_value, recorded_at) VALUES ($1, $2, $3, $4, $5)"))
	prep.ExpectExec().
		WithArgs(ts, "camera:1", 41.5, 40.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(ts.Add(time.Second), "camera:1", 39.0, 40.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	samples := []model.Sample{
		{Timestamp: ts, Raw: 41.5, Smoothed: 40},
		{Timestamp: ts.Add(time.Second), Raw: 39, Smoothed: 40},
	}
	if err := store.SaveSamples(context.Background(), "camera:1", samples); err != nil {
		t.Fatalf("save samples: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveSamplesRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := newSQLStore(db, sqliteDialect)
	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO samples")).
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveSamples(context.Background(), "synthetic", []model.Sample{{Timestamp: time.Now()}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveSamplesEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if err := newSQLStore(db, sqliteDialect).SaveSamples(context.Background(), "x", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveAlertSQLite(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	ts := time.Date(2024, 6, 1, 8, 0, 45, 0, time.UTC)
	alert := model.Alert{Kind: model.AlertRelativeDrop, Timestamp: ts, Magnitude: 15, Value: 85, Threshold: 10}
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO alerts (ts, source, kind, magnitude, value, threshold, payload_json) VALUES (?, ?, ?, ?, ?, ?, ?)")).
		WithArgs(ts, "camera:1", "relative_drop", 15.0, 85.0, 10.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := newSQLStore(db, sqliteDialect).SaveAlert(context.Background(), "camera:1", alert); err != nil {
		t.Fatalf("save alert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInitRunsSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	for range postgresDialect.schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := newSQLStore(db, postgresDialect).Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNewStoreDisabledAndUnknown(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Enabled: false})
	if err != nil || s != nil {
		t.Fatalf("disabled storage should return nil, nil")
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	store, err := NewSQLite("file:" + t.TempDir() + "/pw.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveSamples(ctx, "synthetic", []model.Sample{{Timestamp: time.Now(), Raw: 1, Smoothed: 2}}); err != nil {
		t.Fatalf("save samples: %v", err)
	}
	if err := store.SaveAlert(ctx, "synthetic", model.Alert{Kind: model.AlertSustainedLow, Timestamp: time.Now()}); err != nil {
		t.Fatalf("save alert: %v", err)
	}
}
