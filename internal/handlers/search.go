package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"facetrace/internal/contextutil"
	"facetrace/internal/embed"
	"facetrace/internal/engine"
)

// SearchHandler handles HTTP requests for identity searches.
type SearchHandler struct {
	engine      *engine.Engine
	embedder    embed.Embedder
	defaultTopK int
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(eng *engine.Engine, embedder embed.Embedder, defaultTopK int) *SearchHandler {
	return &SearchHandler{
		engine:      eng,
		embedder:    embedder,
		defaultTopK: defaultTopK,
	}
}

// SearchRequest represents the HTTP request payload for identity searches.
// Exactly one of Image (base64-encoded probe photo) or Vector (pre-computed
// embedding) must be provided.
type SearchRequest struct {
	Image  string    `json:"image,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	TopK   int       `json:"top_k,omitempty"`
}

// SearchResponse represents the HTTP response payload for identity searches.
type SearchResponse struct {
	Results []engine.Match `json:"results"`
	Count   int            `json:"count"`
	Message string         `json:"message,omitempty"`
}

// ServeHTTP handles HTTP requests for identity searches.
//
// A failure to embed the probe image is not an error to the caller: the
// search degrades to an empty result set with a message, so clients can
// always render a result page.
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Image == "" && len(req.Vector) == 0 {
		logger.WarnContext(ctx, "search request missing probe")
		writeError(w, http.StatusBadRequest, "Either image or vector is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}
	if topK > 100 {
		topK = 100
	}

	vector := req.Vector
	if len(vector) == 0 {
		embedded, message := h.embedProbe(r, req.Image)
		if message != "" {
			writeJSON(w, http.StatusOK, SearchResponse{
				Results: []engine.Match{},
				Count:   0,
				Message: message,
			})
			return
		}
		vector = embedded
	}

	matches, err := h.engine.Search(ctx, vector, topK)
	if err != nil {
		logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process search")
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results: matches,
		Count:   len(matches),
	})
}

// embedProbe decodes and embeds the base64 probe image. On failure it returns
// an empty vector and a human-readable message for the degraded response.
func (h *SearchHandler) embedProbe(r *http.Request, image string) ([]float32, string) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		logger.WarnContext(ctx, "invalid base64 probe image", "error", err)
		return nil, "Invalid image encoding"
	}

	// The embedding client reads from disk, so stage the upload in a temp file.
	tmpDir, err := os.MkdirTemp("", "facetrace-probe-*")
	if err != nil {
		logger.ErrorContext(ctx, "failed to stage probe image", "error", err)
		return nil, "Failed to process image"
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	probePath := filepath.Join(tmpDir, "probe.jpg")
	if err := os.WriteFile(probePath, data, 0600); err != nil {
		logger.ErrorContext(ctx, "failed to stage probe image", "error", err)
		return nil, "Failed to process image"
	}

	vector, err := h.embedder.EmbedImage(ctx, probePath)
	if err != nil {
		if errors.Is(err, embed.ErrNoFace) {
			logger.InfoContext(ctx, "no face detected in probe image")
			return nil, "No face detected in the provided image"
		}
		logger.ErrorContext(ctx, "failed to embed probe image", "error", err)
		return nil, "Face embedding service unavailable"
	}
	return vector, ""
}
