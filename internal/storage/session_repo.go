package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"facetrace/internal/session"
)

// SessionRepo stores one row per session in SQLite. It implements
// session.Store, making the embedded database a drop-in alternative to the
// file-per-session layout.
type SessionRepo struct {
	db *sql.DB
}

var _ session.Store = (*SessionRepo)(nil)

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Put inserts a new session row or replaces the existing one.
func (r *SessionRepo) Put(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, last_accessed, data)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 last_accessed = excluded.last_accessed, data = excluded.data`,
		s.SessionID, s.UserID, s.CreatedAt.UTC().Format(time.RFC3339Nano),
		s.LastAccessed.UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Get loads a session by id. Returns session.ErrNotFound if no row exists.
func (r *SessionRepo) Get(ctx context.Context, id string) (*session.Session, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM sessions WHERE id = ?", id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session row: %w", err)
	}
	return &sess, nil
}

// Delete removes a session row. Deleting a missing row is not an error.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns every persisted session. Unparseable rows are skipped so one
// corrupt session cannot block the expiry sweep.
func (r *SessionRepo) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT data FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []*session.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess session.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			continue
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}
