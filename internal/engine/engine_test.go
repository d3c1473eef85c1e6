package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"facetrace/internal/archive"
	"facetrace/internal/casemeta"
	"facetrace/internal/vectorstore"
)

func newTestEngine(t *testing.T, now time.Time) (*Engine, *vectorstore.LocalStore) {
	t.Helper()
	dir := t.TempDir()
	store := vectorstore.NewLocalStore(2, filepath.Join(dir, "snapshot.json"))
	log := archive.NewLog(filepath.Join(dir, "deleted.json"))
	synth := casemeta.NewSynthesizer(casemeta.WithClock(func() time.Time { return now }))
	eng := New(store, log, synth, WithClock(func() time.Time { return now }))
	return eng, store
}

func TestEngine_SearchEnrichesMatches(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, store := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{Filename: "suspect_042.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := eng.Upsert(ctx, []float32{0, 1}, vectorstore.Payload{Filename: "suspect_117.jpg"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := eng.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}

	m := matches[0]
	if m.ID != id {
		t.Errorf("ID = %q, want %q", m.ID, id)
	}
	if m.Score < 0.999 {
		t.Errorf("Score = %v, want ~1", m.Score)
	}
	if m.Category == "" {
		t.Error("Category is empty, want a synthesized category")
	}
	if m.Timestamp.After(now) {
		t.Errorf("Timestamp %v is in the future", m.Timestamp)
	}
	// A record never accessed carries no boost: confidence equals the raw score.
	if m.Confidence != m.Score {
		t.Errorf("Confidence = %v, want raw score %v", m.Confidence, m.Score)
	}

	// Search is a non-counting read.
	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Payload.AccessCount != 0 {
		t.Errorf("AccessCount = %d after search, want 0", rec.Payload.AccessCount)
	}
}

func TestEngine_SearchStoredCategoryWins(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, now)
	ctx := context.Background()

	if _, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{
		Filename: "manual_entry.jpg",
		Category: "Fraud",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := eng.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if matches[0].Category != "Fraud" {
		t.Errorf("Category = %q, want stored category %q", matches[0].Category, "Fraud")
	}
}

func TestEngine_SearchConfidenceBoostedByAccess(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{Filename: "frequent.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := eng.GetRecord(ctx, id, true); err != nil {
			t.Fatalf("GetRecord() error = %v", err)
		}
	}

	// An imperfect match leaves headroom below the confidence cap.
	matches, err := eng.Search(ctx, []float32{1, 0.3}, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	m := matches[0]
	if m.Confidence <= m.Score {
		t.Errorf("Confidence = %v, want > raw score %v after repeated access", m.Confidence, m.Score)
	}
	if m.AccessStats.AccessCount != 5 {
		t.Errorf("AccessStats.AccessCount = %d, want 5", m.AccessStats.AccessCount)
	}
}

func TestEngine_UpsertResetsReinforcement(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, store := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{
		Filename: "tampered.jpg",
		ReinforcementState: vectorstore.ReinforcementState{
			AccessCount:     42,
			ConfidenceBoost: 0.3,
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Payload.AccessCount != 0 || rec.Payload.ConfidenceBoost != 0 {
		t.Errorf("reinforcement = %+v, want zero state", rec.Payload.ReinforcementState)
	}
	if !rec.Payload.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", rec.Payload.CreatedAt, now)
	}
}

func TestEngine_GetRecordCounting(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, store := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{Filename: "watched.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rec, err := eng.GetRecord(ctx, id, true)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Payload.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", rec.Payload.AccessCount)
	}
	if !rec.Payload.LastAccessed.Equal(now) {
		t.Errorf("LastAccessed = %v, want %v", rec.Payload.LastAccessed, now)
	}

	// The update must be written back, not just reflected in the return value.
	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Payload.AccessCount != 1 {
		t.Errorf("stored AccessCount = %d, want 1", stored.Payload.AccessCount)
	}

	// A non-counting read leaves the state alone.
	if _, err := eng.GetRecord(ctx, id, false); err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	stored, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Payload.AccessCount != 1 {
		t.Errorf("AccessCount = %d after non-counting read, want 1", stored.Payload.AccessCount)
	}
}

func TestEngine_GetRecordMissing(t *testing.T) {
	eng, _ := newTestEngine(t, time.Now())

	_, err := eng.GetRecord(context.Background(), "no-such-id", true)
	if !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("GetRecord() error = %v, want ErrNotFound", err)
	}
}

func TestEngine_DeleteArchiveRestoreRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, store := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{0.5, 0.5}, vectorstore.Payload{
		Filename: "cold_case.jpg",
		Name:     "John Doe",
		Category: "Robbery",
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := eng.GetRecord(ctx, id, true); err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}

	if err := eng.DeleteRecord(ctx, id); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}

	deleted, err := eng.DeletedRecords(ctx)
	if err != nil {
		t.Fatalf("DeletedRecords() error = %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("len(deleted) = %d, want 1", len(deleted))
	}
	if deleted[0].ID != id || deleted[0].Payload.Name != "John Doe" {
		t.Errorf("archived entry = %+v, want original id and payload", deleted[0])
	}
	if !deleted[0].DeletedAt.Equal(now) {
		t.Errorf("DeletedAt = %v, want %v", deleted[0].DeletedAt, now)
	}

	count, err := eng.RestoreDeleted(ctx)
	if err != nil {
		t.Fatalf("RestoreDeleted() error = %v", err)
	}
	if count != 1 {
		t.Errorf("restored count = %d, want 1", count)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() after restore error = %v", err)
	}
	if rec.Payload.Name != "John Doe" || rec.Payload.Category != "Robbery" {
		t.Errorf("restored payload = %+v, want original metadata", rec.Payload)
	}
	if rec.Payload.AccessCount != 1 {
		t.Errorf("restored AccessCount = %d, want 1", rec.Payload.AccessCount)
	}

	// The original embedding is gone; a zero placeholder of the store
	// dimension takes its place.
	if len(rec.Vector) != 2 {
		t.Fatalf("restored vector length = %d, want 2", len(rec.Vector))
	}
	for i, v := range rec.Vector {
		if v != 0 {
			t.Errorf("restored vector[%d] = %v, want 0", i, v)
		}
	}
}

func TestEngine_DeleteRecordMissing(t *testing.T) {
	eng, _ := newTestEngine(t, time.Now())

	err := eng.DeleteRecord(context.Background(), "no-such-id")
	if !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("DeleteRecord() error = %v, want ErrNotFound", err)
	}
}

func TestEngine_BulkDeleteSkipsMissing(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, store := newTestEngine(t, now)
	ctx := context.Background()

	a, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{Filename: "a.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	b, err := eng.Upsert(ctx, []float32{0, 1}, vectorstore.Payload{Filename: "b.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := eng.BulkDelete(ctx, []string{a, "no-such-id", b}); err != nil {
		t.Fatalf("BulkDelete() error = %v", err)
	}

	if store.Count() != 0 {
		t.Errorf("store has %d records after bulk delete, want 0", store.Count())
	}
	deleted, err := eng.DeletedRecords(ctx)
	if err != nil {
		t.Fatalf("DeletedRecords() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("len(deleted) = %d, want 2 (missing id not archived)", len(deleted))
	}
}

func TestEngine_ListRecordsByCategory(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, now)
	ctx := context.Background()

	for _, p := range []vectorstore.Payload{
		{Filename: "a.jpg", Category: "Fraud"},
		{Filename: "b.jpg", Category: "Robbery"},
		{Filename: "c.jpg", Category: "Fraud"},
	} {
		if _, err := eng.Upsert(ctx, []float32{1, 0}, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	recs, err := eng.ListRecords(ctx, 50, 0, "Fraud")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(recs) = %d, want 2", len(recs))
	}

	all, err := eng.ListRecords(ctx, 50, 0, "")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestEngine_MemoryStats(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := eng.Upsert(ctx, []float32{1, 0}, vectorstore.Payload{Filename: "a.jpg"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := eng.GetRecord(ctx, id, true); err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}

	stats, err := eng.MemoryStats(ctx, id)
	if err != nil {
		t.Fatalf("MemoryStats() error = %v", err)
	}
	if stats.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", stats.AccessCount)
	}
	// Reading stats is itself non-counting.
	again, err := eng.MemoryStats(ctx, id)
	if err != nil {
		t.Fatalf("MemoryStats() error = %v", err)
	}
	if again.AccessCount != 1 {
		t.Errorf("AccessCount = %d after stats read, want 1", again.AccessCount)
	}

	if _, err := eng.MemoryStats(ctx, "no-such-id"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("MemoryStats() error = %v, want ErrNotFound", err)
	}
}

func TestEngine_Stats(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng, _ := newTestEngine(t, now)
	ctx := context.Background()

	for _, p := range []vectorstore.Payload{
		{Filename: "a.jpg", Category: "Fraud"},
		{Filename: "b.jpg", Category: "Fraud"},
		{Filename: "c.jpg"}, // indexed record, no stored category
	} {
		if _, err := eng.Upsert(ctx, []float32{1, 0}, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	if stats.VectorSize != 2 {
		t.Errorf("VectorSize = %d, want 2", stats.VectorSize)
	}
	if stats.CategoryDistribution["Fraud"] != 2 {
		t.Errorf("CategoryDistribution[Fraud] = %d, want 2", stats.CategoryDistribution["Fraud"])
	}
	if _, ok := stats.CategoryDistribution[""]; ok {
		t.Error("CategoryDistribution contains empty category key")
	}
}
