package handlers

import (
	"context"
	"net/http"

	"facetrace/internal/contextutil"
	"facetrace/internal/indexer"
)

// IndexHandler handles HTTP requests for triggering corpus indexing.
type IndexHandler struct {
	pipeline   *indexer.Pipeline
	corpusPath string
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(pipeline *indexer.Pipeline, corpusPath string) *IndexHandler {
	return &IndexHandler{
		pipeline:   pipeline,
		corpusPath: corpusPath,
	}
}

// IndexResponse represents the response from the index endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP handles HTTP requests for triggering an indexing pass.
//
// With wait=true the pass runs synchronously and the response carries its
// stats. Otherwise indexing runs in the background and the endpoint returns
// immediately; concurrent triggers for the same corpus coalesce into one pass.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		stats, err := h.pipeline.Index(ctx, h.corpusPath)
		if err != nil {
			logger.ErrorContext(ctx, "indexing pass failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Indexing failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	logger.InfoContext(ctx, "indexing triggered via API", "corpus_path", h.corpusPath)

	// Run in a goroutine with a background context so indexing continues
	// after the HTTP request completes.
	go func() {
		indexCtx := context.Background()
		stats, err := h.pipeline.Index(indexCtx, h.corpusPath)
		if err != nil {
			logger.ErrorContext(indexCtx, "indexing pass completed with errors", "error", err)
			return
		}
		logger.InfoContext(indexCtx, "indexing pass completed",
			"indexed", stats.Indexed,
			"skipped_no_face", stats.SkippedNoFace,
			"remaining", stats.Remaining,
		)
	}()

	writeJSON(w, http.StatusAccepted, IndexResponse{
		Message: "Indexing started. Check server logs for progress.",
		Status:  "accepted",
	})
}
