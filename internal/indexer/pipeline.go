// Package indexer keeps the vector store synchronized with a directory of
// source images, embedding only files not seen before.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"facetrace/internal/contextutil"
	"facetrace/internal/embed"
	"facetrace/internal/vectorstore"
)

const (
	// DefaultBatchLimit caps new files processed per pass, bounding the
	// worst-case latency of a single invocation. Policy, not architecture.
	DefaultBatchLimit = 50
	// DefaultCheckpointInterval is how many processed files pass between
	// snapshot checkpoints. A crash mid-pass loses at most one interval.
	DefaultCheckpointInterval = 10
)

// Stats summarizes one indexing pass.
type Stats struct {
	Scanned        int `json:"scanned"`
	AlreadyIndexed int `json:"already_indexed"`
	Processed      int `json:"processed"`
	Indexed        int `json:"indexed"`
	SkippedNoFace  int `json:"skipped_no_face"`
	Errors         int `json:"errors"`
	Remaining      int `json:"remaining"`
}

// Pipeline orchestrates incremental indexing of an image corpus into the
// vector store.
type Pipeline struct {
	store              vectorstore.Store
	embedder           embed.Embedder
	batchLimit         int
	checkpointInterval int
	limiter            *rate.Limiter
	group              singleflight.Group
	logger             *slog.Logger
	now                func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchLimit overrides the per-pass cap on newly processed files.
// A non-positive value removes the cap.
func WithBatchLimit(n int) PipelineOption {
	return func(p *Pipeline) { p.batchLimit = n }
}

// WithCheckpointInterval overrides how often snapshot checkpoints are taken.
func WithCheckpointInterval(n int) PipelineOption {
	return func(p *Pipeline) { p.checkpointInterval = n }
}

// WithRateLimit throttles embedding calls to n per second. Zero disables
// throttling.
func WithRateLimit(n float64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates an indexing pipeline over the given store and embedder.
func NewPipeline(store vectorstore.Store, embedder embed.Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:              store,
		embedder:           embedder,
		batchLimit:         DefaultBatchLimit,
		checkpointInterval: DefaultCheckpointInterval,
		logger:             slog.Default(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Index runs one incremental pass over the corpus. Concurrent calls for the
// same corpus path collapse into a single pass; later callers receive the
// in-flight pass's result instead of double-processing files. Re-running is
// always safe: work resumes from the last persisted checkpoint.
func (p *Pipeline) Index(ctx context.Context, corpusPath string) (*Stats, error) {
	v, err, shared := p.group.Do(corpusPath, func() (any, error) {
		return p.indexPass(ctx, corpusPath)
	})
	if err != nil {
		return nil, err
	}
	stats := v.(*Stats)
	if shared {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "joined in-flight indexing pass", "corpus", corpusPath)
	}
	return stats, nil
}

// indexPass embeds every unseen corpus file up to the batch limit. Per-file
// failures are isolated: a file with no detectable face is skipped and logged,
// never retried automatically, and never aborts the pass.
func (p *Pipeline) indexPass(ctx context.Context, corpusPath string) (*Stats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	images, err := ScanCorpus(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}

	indexed := make(map[string]bool, p.store.Count())
	for _, rec := range p.store.Snapshot() {
		indexed[rec.Payload.Filename] = true
	}

	stats := &Stats{Scanned: len(images)}
	var pending []ScannedImage
	for _, img := range images {
		if indexed[img.Filename] {
			stats.AlreadyIndexed++
			continue
		}
		pending = append(pending, img)
	}

	if len(pending) == 0 {
		logger.DebugContext(ctx, "index is up to date", "corpus", corpusPath, "records", p.store.Count())
		return stats, nil
	}

	if p.batchLimit > 0 && len(pending) > p.batchLimit {
		stats.Remaining = len(pending) - p.batchLimit
		pending = pending[:p.batchLimit]
	}
	logger.InfoContext(ctx, "starting indexing pass",
		"corpus", corpusPath, "new_files", len(pending), "deferred", stats.Remaining)

	sinceCheckpoint := 0
	for _, img := range pending {
		select {
		case <-ctx.Done():
			// Persist what we have before bailing out.
			if err := p.store.Save(ctx); err != nil {
				logger.ErrorContext(ctx, "failed to save snapshot on cancellation", "error", err)
			}
			return stats, ctx.Err()
		default:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}

		stats.Processed++
		vec, err := p.embedder.EmbedImage(ctx, img.AbsPath)
		if errors.Is(err, embed.ErrNoFace) {
			stats.SkippedNoFace++
			logger.WarnContext(ctx, "skipping image with no embeddable face", "filename", img.Filename)
			continue
		}
		if err != nil {
			stats.Errors++
			logger.ErrorContext(ctx, "failed to embed image", "filename", img.Filename, "error", err)
			continue
		}

		now := p.now()
		_, err = p.store.Insert(ctx, vec, vectorstore.Payload{
			Filename:   img.Filename,
			SourcePath: img.AbsPath,
			CreatedAt:  now,
		})
		if err != nil {
			stats.Errors++
			logger.ErrorContext(ctx, "failed to insert record", "filename", img.Filename, "error", err)
			continue
		}
		stats.Indexed++

		sinceCheckpoint++
		if sinceCheckpoint >= p.checkpointInterval {
			if err := p.store.Save(ctx); err != nil {
				logger.ErrorContext(ctx, "failed to write checkpoint", "error", err)
			} else {
				logger.DebugContext(ctx, "checkpoint written", "processed", stats.Processed)
			}
			sinceCheckpoint = 0
		}
	}

	// Unconditional final checkpoint.
	if err := p.store.Save(ctx); err != nil {
		return stats, fmt.Errorf("failed to save final snapshot: %w", err)
	}

	logger.InfoContext(ctx, "indexing pass completed",
		"indexed", stats.Indexed, "no_face", stats.SkippedNoFace,
		"errors", stats.Errors, "total_records", p.store.Count())
	return stats, nil
}
