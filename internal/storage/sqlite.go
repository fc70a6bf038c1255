package storage

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			source TEXT NOT NULL,
			raw_value REAL NOT NULL,
			smoothed_value REAL NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			magnitude REAL NOT NULL,
			value REAL NOT NULL,
			threshold REAL NOT NULL,
			payload_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
	},
	placeholder: func(int) string { return "?" },
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:plantwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return newSQLStore(db, sqliteDialect), nil
}
