package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"facetrace/internal/contextutil"
	"facetrace/internal/engine"
	"facetrace/internal/vectorstore"
)

// RecordsHandler handles HTTP requests for record CRUD, bulk deletion, and
// the deleted-records archive.
type RecordsHandler struct {
	engine *engine.Engine
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(eng *engine.Engine) *RecordsHandler {
	return &RecordsHandler{engine: eng}
}

// CreateRecordRequest represents the payload for creating a record.
type CreateRecordRequest struct {
	Vector   []float32 `json:"vector"`
	Filename string    `json:"filename,omitempty"`
	Name     string    `json:"name,omitempty"`
	Category string    `json:"category,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// UpdateRecordRequest represents a partial payload update. Omitted fields are
// left untouched.
type UpdateRecordRequest struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// BulkDeleteRequest lists the record ids to delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// Create handles POST requests that insert a new record.
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Vector) == 0 {
		writeError(w, http.StatusBadRequest, "Vector is required")
		return
	}

	id, err := h.engine.Upsert(ctx, req.Vector, vectorstore.Payload{
		Filename: req.Filename,
		Name:     req.Name,
		Category: req.Category,
		Notes:    req.Notes,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create record", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create record")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Get handles GET requests for a single record. The read counts as an access
// unless the caller passes count_access=false; counted reads reinforce the
// record's ranking priority.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	countAccess := r.URL.Query().Get("count_access") != "false"

	rec, err := h.engine.GetRecord(ctx, id, countAccess)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		logger.ErrorContext(ctx, "failed to get record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Update handles PATCH requests that modify a record's payload.
func (h *RecordsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := vectorstore.Patch{
		Name:     req.Name,
		Category: req.Category,
		Notes:    req.Notes,
	}
	if err := h.engine.UpdateRecord(ctx, id, patch); err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		logger.ErrorContext(ctx, "failed to update record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE requests. The record's payload is archived before
// removal so it can be restored later.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := chi.URLParam(r, "id")

	if err := h.engine.DeleteRecord(ctx, id); err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		logger.ErrorContext(ctx, "failed to delete record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// BulkDelete handles POST requests that delete multiple records at once.
// Missing ids are skipped rather than failing the batch.
func (h *RecordsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "At least one id is required")
		return
	}

	if err := h.engine.BulkDelete(ctx, req.IDs); err != nil {
		logger.ErrorContext(ctx, "failed to bulk delete records", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "count": len(req.IDs)})
}

// List handles GET requests for a page of records in ingestion order,
// optionally filtered by category. Listing never counts as an access.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	category := r.URL.Query().Get("category")

	records, err := h.engine.ListRecords(ctx, limit, offset, category)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list records", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list records")
		return
	}
	if records == nil {
		records = []vectorstore.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// Deleted handles GET requests for the deleted-records archive, newest first.
func (h *RecordsHandler) Deleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := h.engine.DeletedRecords(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read deleted records", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read deleted records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": entries,
		"count":   len(entries),
	})
}

// Restore handles POST requests that replay the deleted-records archive back
// into the store.
func (h *RecordsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	restored, err := h.engine.RestoreDeleted(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to restore deleted records", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to restore deleted records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "count": restored})
}

// Stats handles GET requests for corpus-level statistics.
func (h *RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	stats, err := h.engine.Stats(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to compute store stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// queryInt parses an integer query parameter, falling back to a default on
// absence or garbage.
func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	return parsed
}
