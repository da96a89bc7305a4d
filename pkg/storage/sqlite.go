package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/itohio/cryotherm/pkg/sample"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time INTEGER,
	end_time INTEGER,
	state TEXT,
	channels INTEGER,
	scans INTEGER,
	skipped INTEGER,
	actual_rate REAL,
	bias REAL,
	window_size INTEGER
);
CREATE TABLE IF NOT EXISTS samples (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	channel TEXT NOT NULL,
	seq INTEGER NOT NULL,
	cycle INTEGER,
	timestamp INTEGER,
	voltage REAL,
	resistance REAL,
	temperature REAL,
	PRIMARY KEY (session_id, channel, seq)
);
CREATE TABLE IF NOT EXISTS windows (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	channel TEXT NOT NULL,
	idx INTEGER NOT NULL,
	count INTEGER,
	size INTEGER,
	timestamp INTEGER,
	voltage REAL,
	resistance REAL,
	temperature REAL,
	PRIMARY KEY (session_id, channel, idx)
);
`

// SQLite stores sessions, raw samples and averaged windows in one database
// file. Every write runs in its own transaction.
type SQLite struct {
	db      *sql.DB
	session string
}

// OpenSQLite opens (creating if needed) the database at path and records
// info in the sessions table.
func OpenSQLite(path string, info SessionInfo) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO sessions (id, start_time, end_time, state, channels, scans, skipped, actual_rate, bias, window_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, unixNano(info.Start), unixNano(info.End), info.State, info.Channels,
		info.Scans, info.Skipped, info.ActualRate, info.Bias, info.WindowSize,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &SQLite{db: db, session: info.ID}, nil
}

// DB exposes the underlying handle for queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) WriteSeries(series sample.Series) error {
	if len(series.Records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO samples (session_id, channel, seq, cycle, timestamp, voltage, resistance, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare samples insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range series.Records {
		_, err := stmt.Exec(s.session, series.Channel.Name, i, r.Cycle, unixNano(r.Timestamp), r.Voltage, r.Resistance, r.Temperature)
		if err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) WriteWindows(channel string, windows []sample.Window) error {
	if len(windows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO windows (session_id, channel, idx, count, size, timestamp, voltage, resistance, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare windows insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range windows {
		_, err := stmt.Exec(s.session, channel, w.Index, w.Count, w.Size, unixNano(w.Timestamp), w.Voltage, w.Resistance, w.Temperature)
		if err != nil {
			return fmt.Errorf("insert window %d: %w", w.Index, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// unixNano stores zero times as NULL.
func unixNano(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}
