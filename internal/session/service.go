package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"facetrace/internal/contextutil"
)

// Service implements the session lifecycle over a Store.
type Service struct {
	store        Store
	expiryWindow time.Duration
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExpiryWindow overrides the session expiry window.
func WithExpiryWindow(d time.Duration) ServiceOption {
	return func(s *Service) { s.expiryWindow = d }
}

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service backed by the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		expiryWindow: DefaultExpiryWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a new session for the given user (or "anonymous").
func (s *Service) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		userID = AnonymousUser
	}
	now := s.now()
	sess := &Session{
		SessionID:    uuid.New().String(),
		UserID:       userID,
		CreatedAt:    now,
		LastAccessed: now,
		Interactions: []Interaction{},
		Context:      map[string]any{},
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// Get loads a session and refreshes its lastAccessed time. It is the sole
// expiry checkpoint: an expired session is deleted here and reported as not
// found, so no background sweep is needed for correctness.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if s.expired(sess, now) {
		logger := contextutil.LoggerFromContext(ctx)
		if err := s.store.Delete(ctx, id); err != nil {
			logger.WarnContext(ctx, "failed to delete expired session", "session_id", id, "error", err)
		}
		logger.DebugContext(ctx, "session expired", "session_id", id)
		return nil, ErrNotFound
	}

	sess.LastAccessed = now
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return sess, nil
}

// LogInteraction appends an interaction with a server-assigned timestamp,
// truncating the history to the most recent MaxHistory entries. When the
// session is missing or expired a fresh anonymous session is created so the
// interaction is never lost; the session the entry landed in is returned.
func (s *Service) LogInteraction(ctx context.Context, id string, interaction Interaction) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		sess, err = s.Create(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	interaction.Timestamp = s.now()
	sess.Interactions = append(sess.Interactions, interaction)
	if len(sess.Interactions) > MaxHistory {
		sess.Interactions = sess.Interactions[len(sess.Interactions)-MaxHistory:]
	}

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save interaction: %w", err)
	}
	return sess, nil
}

// History returns up to limit interactions, most recent first.
func (s *Service) History(ctx context.Context, id string, limit int) ([]Interaction, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	interactions := sess.Interactions
	if limit > 0 && len(interactions) > limit {
		interactions = interactions[len(interactions)-limit:]
	}

	out := make([]Interaction, len(interactions))
	for i, in := range interactions {
		out[len(interactions)-1-i] = in
	}
	return out, nil
}

// GetContext returns the session's investigation context.
func (s *Service) GetContext(ctx context.Context, id string) (map[string]any, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Context == nil {
		return map[string]any{}, nil
	}
	return sess.Context, nil
}

// UpdateContext shallow-merges updates into the session context: new keys
// override, unspecified keys are retained.
func (s *Service) UpdateContext(ctx context.Context, id string, updates map[string]any) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Context == nil {
		sess.Context = map[string]any{}
	}
	for k, v := range updates {
		sess.Context[k] = v
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

// Delete removes a session unconditionally.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// CleanupExpired sweeps all persisted sessions and deletes those past the
// expiry window, returning the number deleted. Purely a storage-reclamation
// operation; lazy expiry in Get already guarantees correctness.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	logger := contextutil.LoggerFromContext(ctx)
	now := s.now()
	deleted := 0
	for _, sess := range sessions {
		if !s.expired(sess, now) {
			continue
		}
		if err := s.store.Delete(ctx, sess.SessionID); err != nil {
			logger.WarnContext(ctx, "failed to delete expired session", "session_id", sess.SessionID, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (s *Service) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.CreatedAt) > s.expiryWindow
}
