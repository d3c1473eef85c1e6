// Package engine ties the vector store, ranking stage, metadata synthesizer,
// reinforcement model, and deletion archive into the identity-matching
// service surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facetrace/internal/archive"
	"facetrace/internal/casemeta"
	"facetrace/internal/contextutil"
	"facetrace/internal/memory"
	"facetrace/internal/ranking"
	"facetrace/internal/vectorstore"
)

// DefaultTopK is the number of matches returned when the caller doesn't ask
// for a specific count.
const DefaultTopK = 3

// Match is one enriched search result.
type Match struct {
	ID          string       `json:"id"`
	Score       float64      `json:"score"`
	Confidence  float64      `json:"confidence"`
	Filename    string       `json:"filename,omitempty"`
	Category    string       `json:"category"`
	Timestamp   time.Time    `json:"timestamp"`
	AccessStats memory.Stats `json:"access_stats"`
}

// StoreStats summarizes the record corpus.
type StoreStats struct {
	TotalRecords         int            `json:"total_records"`
	VectorSize           int            `json:"vector_size"`
	CategoryDistribution map[string]int `json:"category_distribution"`
}

// Engine is the identity matching and adaptive ranking service.
type Engine struct {
	store   vectorstore.Store
	archive *archive.Log
	synth   *casemeta.Synthesizer
	params  memory.Params
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMemoryParams overrides the reinforcement model parameters.
func WithMemoryParams(p memory.Params) Option {
	return func(e *Engine) { e.params = p }
}

// New creates an Engine over the given store, archive log, and synthesizer.
func New(store vectorstore.Store, archiveLog *archive.Log, synth *casemeta.Synthesizer, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		archive: archiveLog,
		synth:   synth,
		params:  memory.DefaultParams(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search scores the query against a snapshot of the full corpus and returns
// the top-K matches enriched with case metadata, boosted confidence, and
// reinforcement statistics. The read is non-counting: browsing results does
// not reinforce them, only an explicit record access does.
func (e *Engine) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	ranked := ranking.Rank(query, e.store.Snapshot(), topK)

	now := e.now()
	matches := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		matches = append(matches, e.enrich(r, now))
	}
	return matches, nil
}

// enrich attaches display metadata and reinforcement stats to a ranked record.
// A category stored explicitly on the payload wins; otherwise the category and
// case date are synthesized deterministically from the record's seed.
func (e *Engine) enrich(r ranking.Match, now time.Time) Match {
	payload := r.Record.Payload
	meta := e.synth.Synthesize(casemeta.SeedFromFilename(payload.Filename))

	category := payload.Category
	if category == "" {
		category = meta.Category
	}

	return Match{
		ID:          r.Record.ID,
		Score:       r.Score,
		Confidence:  e.params.ApplyBoost(r.Score, payload),
		Filename:    payload.Filename,
		Category:    category,
		Timestamp:   meta.Timestamp,
		AccessStats: e.params.StatsFor(payload, now),
	}
}

// Upsert inserts a record with freshly initialized reinforcement state and
// persists the store. The returned id is deterministic when the payload
// carries a filename.
func (e *Engine) Upsert(ctx context.Context, vector []float32, payload vectorstore.Payload) (string, error) {
	now := e.now()
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now
	}
	payload.ReinforcementState = vectorstore.ReinforcementState{}

	id, err := e.store.Insert(ctx, vector, payload)
	if err != nil {
		return "", err
	}
	if err := e.store.Save(ctx); err != nil {
		return "", fmt.Errorf("failed to persist store: %w", err)
	}
	return id, nil
}

// GetRecord loads a record by id. A counting read registers the access:
// the reinforcement state is updated and written back. Administrative
// listings must pass countAccess=false so browsing never inflates priority.
func (e *Engine) GetRecord(ctx context.Context, id string, countAccess bool) (*vectorstore.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !countAccess {
		return rec, nil
	}

	updated := e.params.UpdateOnAccess(rec.Payload, e.now())
	patch := vectorstore.Patch{Reinforcement: &updated.ReinforcementState}
	if err := e.store.Update(ctx, id, patch); err != nil {
		return nil, fmt.Errorf("failed to write back access state: %w", err)
	}
	if err := e.store.Save(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist store: %w", err)
	}

	rec.Payload = updated
	return rec, nil
}

// UpdateRecord applies a payload patch. The vector is untouched.
func (e *Engine) UpdateRecord(ctx context.Context, id string, patch vectorstore.Patch) error {
	if err := e.store.Update(ctx, id, patch); err != nil {
		return err
	}
	if err := e.store.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// DeleteRecord archives the record's payload and then removes it from the
// store. The archive append happens first so a failed delete never loses the
// restoration path.
func (e *Engine) DeleteRecord(ctx context.Context, id string) error {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := e.archive.Append(ctx, archive.Entry{
		ID:        rec.ID,
		Payload:   rec.Payload,
		DeletedAt: e.now(),
	}); err != nil {
		return fmt.Errorf("failed to archive record: %w", err)
	}

	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.store.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// BulkDelete archives and removes multiple records. Missing ids are skipped.
func (e *Engine) BulkDelete(ctx context.Context, ids []string) error {
	logger := contextutil.LoggerFromContext(ctx)
	now := e.now()

	var present []string
	for _, id := range ids {
		rec, err := e.store.Get(ctx, id)
		if errors.Is(err, vectorstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := e.archive.Append(ctx, archive.Entry{ID: rec.ID, Payload: rec.Payload, DeletedAt: now}); err != nil {
			logger.WarnContext(ctx, "failed to archive record before bulk delete", "id", id, "error", err)
		}
		present = append(present, id)
	}

	if err := e.store.DeleteMany(ctx, present); err != nil {
		return err
	}
	if err := e.store.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist store: %w", err)
	}
	return nil
}

// ListRecords returns a page of records in ingestion order, optionally
// filtered by category. Listing is a non-counting read path.
func (e *Engine) ListRecords(ctx context.Context, limit, offset int, category string) ([]vectorstore.Record, error) {
	if category != "" {
		return e.store.FilterByField(ctx, "category", category, limit)
	}
	return e.store.List(ctx, limit, offset)
}

// DeletedRecords lists the archive log, newest deletions first.
func (e *Engine) DeletedRecords(ctx context.Context) ([]archive.Entry, error) {
	return e.archive.Entries(ctx)
}

// RestoreDeleted replays the archive log back into the store and returns how
// many records were restored. Vectors are replaced by a zero placeholder of
// the store dimension; payloads round-trip exactly.
func (e *Engine) RestoreDeleted(ctx context.Context) (int, error) {
	entries, err := e.archive.Entries(ctx)
	if err != nil {
		return 0, err
	}

	placeholder := make([]float32, e.store.Dimension())
	for _, entry := range entries {
		if err := e.store.Restore(ctx, entry.ID, placeholder, entry.Payload); err != nil {
			return 0, fmt.Errorf("failed to restore record %s: %w", entry.ID, err)
		}
	}
	if len(entries) > 0 {
		if err := e.store.Save(ctx); err != nil {
			return 0, fmt.Errorf("failed to persist store: %w", err)
		}
	}
	return len(entries), nil
}

// MemoryStats returns reinforcement statistics for a record without counting
// the read as an access.
func (e *Engine) MemoryStats(ctx context.Context, id string) (*memory.Stats, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := e.params.StatsFor(rec.Payload, e.now())
	return &stats, nil
}

// Stats summarizes the corpus: record count, vector size, and how stored
// categories are distributed.
func (e *Engine) Stats(ctx context.Context) (*StoreStats, error) {
	dist := make(map[string]int)
	records := e.store.Snapshot()
	for _, rec := range records {
		if rec.Payload.Category != "" {
			dist[rec.Payload.Category]++
		}
	}
	return &StoreStats{
		TotalRecords:         len(records),
		VectorSize:           e.store.Dimension(),
		CategoryDistribution: dist,
	}, nil
}
