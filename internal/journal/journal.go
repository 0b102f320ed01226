// Package journal records dispatched tool calls in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scenewire/internal/domain"
)

// Entry is one recorded tool call.
type Entry struct {
	ID         int64               `json:"id"`
	CallID     string              `json:"callId"`
	Tool       string              `json:"tool"`
	OK         bool                `json:"ok"`
	InstanceID string              `json:"instanceId,omitempty"`
	Applied    int                 `json:"applied"`
	Failed     int                 `json:"failed"`
	Errors     []domain.ParamError `json:"errors,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Store is a SQLite-backed domain.CallJournal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates the journal table if needed. Returns an error if db is nil or
// the migration fails.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db must not be nil")
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			ok INTEGER NOT NULL,
			instance_id TEXT NOT NULL DEFAULT '',
			applied INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			errors TEXT NOT NULL DEFAULT '[]',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS tool_calls_call_id ON tool_calls(call_id)`)
	return err
}

// Record stores one reply.
func (s *Store) Record(ctx context.Context, reply domain.ToolReply) error {
	errs := reply.Errors
	if errs == nil {
		errs = []domain.ParamError{}
	}
	blob, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("journal encode errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (call_id, tool, ok, instance_id, applied, failed, errors, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reply.CallID, reply.Tool, boolToInt(reply.OK), reply.InstanceID,
		reply.Applied, reply.Failed, string(blob), reply.Error,
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, call_id, tool, ok, instance_id, applied, failed, errors, error, created_at
		 FROM tool_calls ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			ok      int
			errs    string
			created string
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.Tool, &ok, &e.InstanceID, &e.Applied, &e.Failed, &errs, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.OK = ok != 0
		if err := json.Unmarshal([]byte(errs), &e.Errors); err != nil {
			return nil, fmt.Errorf("journal decode errors for call %s: %w", e.CallID, err)
		}
		if len(e.Errors) == 0 {
			e.Errors = nil
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("journal decode time for call %s: %w", e.CallID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
