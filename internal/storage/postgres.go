package storage

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			raw_value DOUBLE PRECISION NOT NULL,
			smoothed_value DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			magnitude DOUBLE PRECISION NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			payload_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	},
	placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/plantwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return newSQLStore(db, postgresDialect), nil
}
