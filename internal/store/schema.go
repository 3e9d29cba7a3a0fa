// Package store provides SQLite-backed persistence for council meetings.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meetings (
	id           TEXT PRIMARY KEY,
	meeting_date TEXT NOT NULL,
	meeting_time TEXT NOT NULL,
	end_time     TEXT NOT NULL DEFAULT '',
	committee    TEXT NOT NULL DEFAULT '',
	meeting_type TEXT NOT NULL,
	location     TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	note         TEXT NOT NULL DEFAULT '',
	document_url TEXT NOT NULL DEFAULT '',
	doc_checksum TEXT NOT NULL DEFAULT '',
	doc_status   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_meetings_date ON meetings(meeting_date);
CREATE INDEX IF NOT EXISTS idx_meetings_committee ON meetings(committee);

CREATE TABLE IF NOT EXISTS committees (
	name TEXT PRIMARY KEY
);
`

// DB wraps a sql.DB with meeting-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
