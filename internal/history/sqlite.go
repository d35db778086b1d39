package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists action records to a sqlite database. The table
// is append-only: inserts only, reads ordered by rowid.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the history database at
// path and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect history store %q: %w", path, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS action_records (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		plan_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_action_records_plan ON action_records(plan_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec ActionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_records (plan_id, action_type, description, status, timestamp, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.ActionType, rec.Description, string(rec.Status),
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("append action record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT plan_id, action_type, description, status, timestamp, duration_ms
		 FROM action_records ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query action records: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var status, ts string
		var durMS int64
		if err := rows.Scan(&rec.TaskID, &rec.ActionType, &rec.Description, &status, &ts, &durMS); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		rec.Status = RecordStatus(status)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse record timestamp %q: %w", ts, err)
		}
		rec.Timestamp = parsed
		rec.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action records: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemStore)(nil)
