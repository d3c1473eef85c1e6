package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"facetrace/internal/embed"
	"facetrace/internal/engine"
	"facetrace/internal/handlers"
	"facetrace/internal/indexer"
	"facetrace/internal/session"
	"facetrace/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine      *engine.Engine
	Store       vectorstore.Store
	Embedder    embed.Embedder
	Pipeline    *indexer.Pipeline
	Sessions    *session.Service
	DB          *sql.DB
	CorpusPath  string
	DefaultTopK int
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Add CORS and context-logger middleware
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	searchHandler := handlers.NewSearchHandler(deps.Engine, deps.Embedder, deps.DefaultTopK)
	recordsHandler := handlers.NewRecordsHandler(deps.Engine)
	sessionsHandler := handlers.NewSessionsHandler(deps.Sessions)
	memoryHandler := handlers.NewMemoryHandler(deps.Engine)
	indexHandler := handlers.NewIndexHandler(deps.Pipeline, deps.CorpusPath)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.DB)

	// Register API routes
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodPost, "/search", searchHandler)
		r.Method(http.MethodPost, "/index", indexHandler)
		r.Get("/stats", recordsHandler.Stats)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", recordsHandler.List)
			r.Post("/", recordsHandler.Create)
			r.Get("/deleted", recordsHandler.Deleted)
			r.Post("/restore", recordsHandler.Restore)
			r.Post("/bulk-delete", recordsHandler.BulkDelete)
			r.Get("/{id}", recordsHandler.Get)
			r.Patch("/{id}", recordsHandler.Update)
			r.Delete("/{id}", recordsHandler.Delete)
		})

		r.Get("/memory/stats/{id}", memoryHandler.Stats)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionsHandler.Create)
			r.Post("/cleanup", sessionsHandler.Cleanup)
			r.Get("/{id}", sessionsHandler.Get)
			r.Delete("/{id}", sessionsHandler.Delete)
			r.Post("/{id}/interactions", sessionsHandler.LogInteraction)
			r.Get("/{id}/history", sessionsHandler.History)
			r.Get("/{id}/context", sessionsHandler.GetContext)
			r.Put("/{id}/context", sessionsHandler.UpdateContext)
		})
	})

	return r
}
