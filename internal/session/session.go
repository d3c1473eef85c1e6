// Package session manages user sessions with a capped interaction history,
// free-form context, and lazy time-based expiry. Persistence is behind the
// Store interface so the backing engine (files, sqlite, memory) is swappable
// without touching session logic.
package session

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_store.go -package=mocks facetrace/internal/session Store

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultExpiryWindow is how long a session lives after creation.
	DefaultExpiryWindow = 24 * time.Hour
	// MaxHistory caps the interaction history per session; the oldest
	// entries are evicted first.
	MaxHistory = 100
	// AnonymousUser is the user id recorded when none is supplied.
	AnonymousUser = "anonymous"
)

// ErrNotFound is returned for missing or expired sessions.
var ErrNotFound = errors.New("session not found")

// Interaction is a single audit-trail entry. The timestamp is always
// server-assigned on append.
type Interaction struct {
	Type      string         `json:"type"`
	Query     string         `json:"query,omitempty"`
	Results   map[string]any `json:"results,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session holds a user's interaction history and investigation context.
type Session struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
	Interactions []Interaction  `json:"interactions"`
	Context      map[string]any `json:"context"`
}

// Store is the key-value persistence abstraction behind the session service.
type Store interface {
	// Put saves a session, overwriting any previous state.
	Put(ctx context.Context, s *Session) error
	// Get loads a session by id. Returns ErrNotFound if missing.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// List returns every persisted session, for the expiry sweep.
	List(ctx context.Context) ([]*Session, error)
}
