package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"facetrace/internal/contextutil"
	"facetrace/internal/session"
)

// SessionsHandler handles HTTP requests for session management and the
// interaction audit trail.
type SessionsHandler struct {
	service *session.Service
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(service *session.Service) *SessionsHandler {
	return &SessionsHandler{service: service}
}

// CreateSessionRequest represents the payload for creating a session.
type CreateSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// LogInteractionRequest represents an interaction to append to a session's
// audit trail. The timestamp is always assigned server-side.
type LogInteractionRequest struct {
	Type     string         `json:"type"`
	Query    string         `json:"query,omitempty"`
	Results  map[string]any `json:"results,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateContextRequest carries the context keys to merge into the session.
type UpdateContextRequest struct {
	Context map[string]any `json:"context"`
}

// Create handles POST requests that open a new session.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WarnContext(ctx, "invalid request body", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sess, err := h.service.Create(ctx, req.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// Get handles GET requests for a session. Expired sessions are purged on
// access and reported as not found.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	sess, err := h.service.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE requests that terminate a session.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

// LogInteraction handles POST requests that append an entry to a session's
// audit trail. A missing session is created on the fly so clients never lose
// an interaction to an expired session.
func (h *SessionsHandler) LogInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	var req LogInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "Interaction type is required")
		return
	}

	sess, err := h.service.LogInteraction(ctx, id, session.Interaction{
		Type:     req.Type,
		Query:    req.Query,
		Results:  req.Results,
		Metadata: req.Metadata,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to log interaction", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to log interaction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":        sess.SessionID,
		"interaction_count": len(sess.Interactions),
	})
}

// History handles GET requests for a session's interactions, newest first.
func (h *SessionsHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	limit := queryInt(r, "limit", 20)

	history, err := h.service.History(ctx, id, limit)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get session history", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}
	if history == nil {
		history = []session.Interaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"history":    history,
		"count":      len(history),
	})
}

// GetContext handles GET requests for the session's investigation context.
func (h *SessionsHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	sessionContext, err := h.service.GetContext(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get session context", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get context")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"context":    sessionContext,
	})
}

// UpdateContext handles PUT requests that shallow-merge keys into the
// session context. Existing keys not named in the update are preserved.
func (h *SessionsHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	var req UpdateContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdateContext(ctx, id, req.Context); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		logger.ErrorContext(ctx, "failed to update session context", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update context")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "updated"})
}

// Cleanup handles POST requests that sweep all expired sessions.
func (h *SessionsHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	removed, err := h.service.CleanupExpired(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to clean up sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clean up sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleaned", "removed": removed})
}
