package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"facetrace/internal/contextutil"
	"facetrace/internal/engine"
	"facetrace/internal/vectorstore"
)

// MemoryHandler handles HTTP requests for reinforcement statistics.
type MemoryHandler struct {
	engine *engine.Engine
}

// NewMemoryHandler creates a new MemoryHandler.
func NewMemoryHandler(eng *engine.Engine) *MemoryHandler {
	return &MemoryHandler{engine: eng}
}

// Stats handles GET requests for a record's reinforcement statistics.
// Inspecting the stats never counts as an access.
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	stats, err := h.engine.MemoryStats(ctx, id)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		logger.ErrorContext(ctx, "failed to compute memory stats", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute memory stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"stats": stats,
	})
}
