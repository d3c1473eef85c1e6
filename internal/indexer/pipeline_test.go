package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"

	"facetrace/internal/embed"
	embed_mocks "facetrace/internal/embed/mocks"
	"facetrace/internal/vectorstore"
)

func TestPipeline_IndexNewFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "a.jpg", "b.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil).Times(2)

	pipeline := NewPipeline(store, embedder)

	stats, err := pipeline.Index(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if stats.Scanned != 2 || stats.Indexed != 2 || stats.AlreadyIndexed != 0 {
		t.Errorf("stats = %+v, want 2 scanned and indexed", stats)
	}
	if store.Count() != 2 {
		t.Errorf("store has %d records, want 2", store.Count())
	}
}

func TestPipeline_SecondPassSkipsIndexed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "a.jpg", "b.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil).Times(3)

	pipeline := NewPipeline(store, embedder)
	ctx := context.Background()

	if _, err := pipeline.Index(ctx, corpus); err != nil {
		t.Fatalf("first Index() error = %v", err)
	}

	// Add one new file; only it should be embedded on the next pass.
	writeFiles(t, corpus, "c.jpg")

	stats, err := pipeline.Index(ctx, corpus)
	if err != nil {
		t.Fatalf("second Index() error = %v", err)
	}
	if stats.AlreadyIndexed != 2 {
		t.Errorf("AlreadyIndexed = %d, want 2", stats.AlreadyIndexed)
	}
	if stats.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", stats.Indexed)
	}
}

func TestPipeline_NoFaceIsSkippedNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "blank.jpg", "face.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Eq(absPath(t, corpus, "blank.jpg"))).Return(nil, embed.ErrNoFace)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Eq(absPath(t, corpus, "face.jpg"))).Return([]float32{1, 0}, nil)

	pipeline := NewPipeline(store, embedder)

	stats, err := pipeline.Index(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if stats.SkippedNoFace != 1 {
		t.Errorf("SkippedNoFace = %d, want 1", stats.SkippedNoFace)
	}
	if stats.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", stats.Indexed)
	}
	if store.Count() != 1 {
		t.Errorf("store has %d records, want 1 (no-face file excluded)", store.Count())
	}
}

func TestPipeline_EmbedErrorDoesNotAbortPass(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "bad.jpg", "good.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Eq(absPath(t, corpus, "bad.jpg"))).Return(nil, errors.New("connection refused"))
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Eq(absPath(t, corpus, "good.jpg"))).Return([]float32{1, 0}, nil)

	pipeline := NewPipeline(store, embedder)

	stats, err := pipeline.Index(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if stats.Errors != 1 || stats.Indexed != 1 {
		t.Errorf("stats = %+v, want 1 error and 1 indexed", stats)
	}
}

func TestPipeline_BatchLimitDefersOverflow(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil).Times(2)

	pipeline := NewPipeline(store, embedder, WithBatchLimit(2))

	stats, err := pipeline.Index(context.Background(), corpus)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	if stats.Indexed != 2 {
		t.Errorf("Indexed = %d, want 2", stats.Indexed)
	}
	if stats.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", stats.Remaining)
	}
}

func TestPipeline_CheckpointsPersistProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "a.jpg", "b.jpg", "c.jpg")

	snapshotPath := filepath.Join(t.TempDir(), "snap.json")
	store := vectorstore.NewLocalStore(2, snapshotPath)
	embedder := embed_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Any()).Return([]float32{1, 0}, nil).Times(3)

	pipeline := NewPipeline(store, embedder, WithCheckpointInterval(1))

	if _, err := pipeline.Index(context.Background(), corpus); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	// A fresh store loading the snapshot sees everything: the final
	// checkpoint persisted the full pass.
	reloaded := vectorstore.NewLocalStore(2, snapshotPath)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Count() != 3 {
		t.Errorf("reloaded store has %d records, want 3", reloaded.Count())
	}
}

func TestPipeline_ConcurrentCallsCoalesce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	corpus := t.TempDir()
	writeFiles(t, corpus, "a.jpg")

	store := vectorstore.NewLocalStore(2, "")
	embedder := embed_mocks.NewMockEmbedder(ctrl)

	release := make(chan struct{})
	embedder.EXPECT().EmbedImage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, path string) ([]float32, error) {
			<-release
			return []float32{1, 0}, nil
		}).Times(1) // exactly one embedding despite two concurrent passes

	pipeline := NewPipeline(store, embedder)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pipeline.Index(ctx, corpus); err != nil {
				t.Errorf("Index() error = %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if store.Count() != 1 {
		t.Errorf("store has %d records, want 1", store.Count())
	}
}

func absPath(t *testing.T, dir, name string) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return abs
}
