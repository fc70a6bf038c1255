package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"plantwatch/internal/config"
	"plantwatch/internal/model"
)

// Store mirrors samples and alerts into a SQL database.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveSamples(ctx context.Context, source string, samples []model.Sample) error
	SaveAlert(ctx context.Context, source string, alert model.Alert) error
}

// NewStore returns nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// dialect carries what differs between the supported databases.
type dialect struct {
	name        string
	schema      []string
	placeholder func(i int) string
}

func (d dialect) values(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) *sqlStore {
	return &sqlStore{db: db, dialect: d}
}

func (s *sqlStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s init: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore) SaveSamples(ctx context.Context, source string, samples []model.Sample) error {
	if s.db == nil || len(samples) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (ts, source, raw_value, smoothed_value, recorded_at) VALUES (`+s.dialect.values(5)+`)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			sample.Timestamp.UTC(),
			source,
			sample.Raw,
			sample.Smoothed,
			nowUTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlStore) SaveAlert(ctx context.Context, source string, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (ts, source, kind, magnitude, value, threshold, payload_json) VALUES (`+s.dialect.values(7)+`)`,
		alert.Timestamp.UTC(),
		source,
		string(alert.Kind),
		alert.Magnitude,
		alert.Value,
		alert.Threshold,
		encodeJSON(alert),
	)
	return err
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
