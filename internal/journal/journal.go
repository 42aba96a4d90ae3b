// Package journal keeps a local record of deployment attempts in SQLite.
// The journal is advisory: writes are best effort and a journal failure
// never affects a deployment's outcome.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opsdeck/winstall/internal/deploy"
)

// Entry is one recorded deployment attempt.
type Entry struct {
	ID        int64
	Host      string
	Code      int
	Duration  time.Duration
	Messages  []deploy.Message
	StartedAt time.Time
}

// Journal is a SQLite-backed attempt log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL,
			code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			messages BLOB NOT NULL,
			started_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create attempts table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends one attempt.
func (j *Journal) Record(host string, result deploy.Result, startedAt time.Time, duration time.Duration) error {
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = j.db.Exec(
		"INSERT INTO attempts (host, code, duration_ms, messages, started_at) VALUES (?, ?, ?, ?, ?)",
		host, result.Code, duration.Milliseconds(), payload, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, host, code, duration_ms, messages, started_at
		FROM attempts
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			payload    []byte
			startedAt  string
		)
		if err := rows.Scan(&e.ID, &e.Host, &e.Code, &durationMS, &payload, &startedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal(payload, &e.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			e.StartedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
