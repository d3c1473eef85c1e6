package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"facetrace/internal/contextutil"
)

// entry wraps a record with its own mutex so payload mutations on different
// ids never block each other. The store-level mutex only guards map structure.
type entry struct {
	mu  sync.Mutex
	rec Record
}

// LocalStore is an in-process vector store with an optional JSON snapshot on
// disk. It implements Store.
type LocalStore struct {
	dimension int
	path      string // snapshot file; empty means memory-only

	mu        sync.RWMutex
	records   map[string]*entry
	nextOrder int
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a store for vectors of the given dimensionality.
// If snapshotPath is non-empty, Load and Save use it.
func NewLocalStore(dimension int, snapshotPath string) *LocalStore {
	return &LocalStore{
		dimension: dimension,
		path:      snapshotPath,
		records:   make(map[string]*entry),
	}
}

// DeterministicID derives a stable id from a filename, so indexing the same
// file twice can never create a duplicate record.
func DeterministicID(filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(filename)).String()
}

func (s *LocalStore) Insert(ctx context.Context, vector []float32, payload Payload) (string, error) {
	var id string
	if payload.Filename != "" {
		id = DeterministicID(payload.Filename)
	} else {
		id = uuid.New().String()
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok {
		// Idempotent re-insert: overwrite, keep the original ingestion order.
		existing.mu.Lock()
		existing.rec.Vector = vec
		existing.rec.Payload = payload
		existing.mu.Unlock()
		return id, nil
	}

	s.records[id] = &entry{rec: Record{
		ID:           id,
		Vector:       vec,
		Payload:      payload,
		CreatedOrder: s.nextOrder,
	}}
	s.nextOrder++
	return id, nil
}

func (s *LocalStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	e, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	rec := cloneRecord(&e.rec)
	e.mu.Unlock()
	return rec, nil
}

func (s *LocalStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.RLock()
	e, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	patch.Apply(&e.rec.Payload)
	e.mu.Unlock()
	return nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *LocalStore) DeleteMany(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, limit, offset int) ([]Record, error) {
	all := s.Snapshot()
	if offset >= len(all) {
		return []Record{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *LocalStore) FilterByField(ctx context.Context, field, value string, limit int) ([]Record, error) {
	var match func(p *Payload) bool
	switch field {
	case "category":
		match = func(p *Payload) bool { return p.Category == value }
	case "filename":
		match = func(p *Payload) bool { return p.Filename == value }
	case "name":
		match = func(p *Payload) bool { return p.Name == value }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	results := []Record{}
	for _, rec := range s.Snapshot() {
		if match(&rec.Payload) {
			results = append(results, rec)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (s *LocalStore) Restore(ctx context.Context, id string, vector []float32, payload Payload) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[id]; ok {
		existing.mu.Lock()
		existing.rec.Vector = vec
		existing.rec.Payload = payload
		existing.mu.Unlock()
		return nil
	}

	s.records[id] = &entry{rec: Record{
		ID:           id,
		Vector:       vec,
		Payload:      payload,
		CreatedOrder: s.nextOrder,
	}}
	s.nextOrder++
	return nil
}

// Snapshot returns a copy of all records sorted by CreatedOrder ascending.
// The backing map has no native order index, so the fallback is copy-then-sort.
func (s *LocalStore) Snapshot() []Record {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		records = append(records, *cloneRecord(&e.rec))
		e.mu.Unlock()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedOrder < records[j].CreatedOrder
	})
	return records
}

func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *LocalStore) Dimension() int {
	return s.dimension
}

// snapshotFile is the on-disk JSON layout.
type snapshotFile struct {
	Dimension int      `json:"dimension"`
	NextOrder int      `json:"next_order"`
	Records   []Record `json:"records"`
}

// Load reads the snapshot file if one exists. A missing file is not an error.
// A corrupt snapshot is logged loudly and degrades to an empty store; the
// corpus can always be re-indexed.
func (s *LocalStore) Load(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.ErrorContext(ctx, "corrupt vector snapshot, starting with empty store",
			"path", s.path, "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*entry, len(snap.Records))
	for i := range snap.Records {
		rec := snap.Records[i]
		s.records[rec.ID] = &entry{rec: rec}
	}
	s.nextOrder = snap.NextOrder
	logger.InfoContext(ctx, "vector snapshot loaded", "path", s.path, "records", len(snap.Records))
	return nil
}

// Save writes the snapshot atomically: full write to a temp file in the same
// directory, fsync, then rename. A partial write is never visible to readers.
func (s *LocalStore) Save(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	snap := snapshotFile{
		Dimension: s.dimension,
		NextOrder: s.nextOrder,
		Records:   make([]Record, 0, len(s.records)),
	}
	for _, e := range s.records {
		e.mu.Lock()
		snap.Records = append(snap.Records, *cloneRecord(&e.rec))
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].CreatedOrder < snap.Records[j].CreatedOrder
	})

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Vector = make([]float32, len(rec.Vector))
	copy(out.Vector, rec.Vector)
	return &out
}
