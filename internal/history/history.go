// Package history keeps a durable journal of environment operations in a
// local SQLite database. The journal is informational: failures to record
// never fail the operation being recorded.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one journaled operation.
type Record struct {
	OpID      string `json:"opId"`
	EnvName   string `json:"envName"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt,omitempty"`
}

// Store is the journal backing file. Open creates the schema on demand.
type Store struct {
	db *sql.DB
}

func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "state.db"))
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS operations (
		op_id TEXT PRIMARY KEY,
		env_name TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);`)
	return err
}

// Begin journals the start of an operation and returns its id.
func (s *Store) Begin(envName, action string) (string, error) {
	opID := makeOpID()
	_, err := s.db.Exec(
		`INSERT INTO operations (op_id, env_name, action, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		opID, envName, action, "running", time.Now().UTC().Format(time.RFC3339Nano),
	)
	return opID, err
}

// Finish journals an operation's outcome.
func (s *Store) Finish(opID, status, detail string) error {
	_, err := s.db.Exec(
		`UPDATE operations SET status = ?, detail = ?, ended_at = ? WHERE op_id = ?`,
		status, nullableString(detail), time.Now().UTC().Format(time.RFC3339Nano), opID,
	)
	return err
}

// List returns the most recent operations, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT op_id, env_name, action, status, COALESCE(detail,''), started_at, COALESCE(ended_at,'')
		 FROM operations ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.OpID, &r.EnvName, &r.Action, &r.Status, &r.Detail, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func makeOpID() string {
	now := time.Now().UTC()
	return now.Format("20060102t150405") + fmt.Sprintf("%09d", now.Nanosecond())
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
