package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"facetrace/internal/archive"
	"facetrace/internal/casemeta"
	"facetrace/internal/config"
	"facetrace/internal/embed"
	"facetrace/internal/engine"
	"facetrace/internal/http"
	"facetrace/internal/indexer"
	"facetrace/internal/session"
	"facetrace/internal/storage"
	"facetrace/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize session database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	ctx := context.Background()

	// Load the vector store snapshot. A corrupt or missing snapshot degrades
	// to an empty store and the corpus is re-indexed from scratch.
	store := vectorstore.NewLocalStore(cfg.VectorSize, cfg.SnapshotPath)
	if err := store.Load(ctx); err != nil {
		log.Fatalf("Failed to load vector store snapshot: %v", err)
	}
	slog.Info("Vector store ready", "path", cfg.SnapshotPath, "records", store.Count(), "vector_size", cfg.VectorSize)

	embedder := embed.NewClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)

	pipeline := indexer.NewPipeline(
		store,
		embedder,
		indexer.WithBatchLimit(cfg.IndexBatchLimit),
		indexer.WithRateLimit(cfg.IndexRatePerSecond),
	)

	archiveLog := archive.NewLog(cfg.ArchivePath)
	synth := casemeta.NewSynthesizer()
	eng := engine.New(store, archiveLog, synth)
	slog.Info("Matching engine initialized")

	sessionService := session.NewService(storage.NewSessionRepo(db))

	// Create router with dependencies
	deps := &http.Deps{
		Engine:      eng,
		Store:       store,
		Embedder:    embedder,
		Pipeline:    pipeline,
		Sessions:    sessionService,
		DB:          db,
		CorpusPath:  cfg.CorpusPath,
		DefaultTopK: cfg.DefaultTopK,
	}
	router := http.NewRouter(deps)

	// Start indexing in background after router is ready
	go func() {
		indexCtx := context.Background()
		slog.Info("Starting background indexing of corpus", "path", cfg.CorpusPath)
		stats, err := pipeline.Index(indexCtx, cfg.CorpusPath)
		if err != nil {
			slog.Error("Indexing completed with errors", "error", err)
			return
		}
		slog.Info("Indexing completed",
			"indexed", stats.Indexed,
			"already_indexed", stats.AlreadyIndexed,
			"skipped_no_face", stats.SkippedNoFace,
			"remaining", stats.Remaining,
		)
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("Embedding configuration", "base_url", cfg.EmbeddingBaseURL, "model", cfg.EmbeddingModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
