package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist in the store.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownField is returned by FilterByField for an unsupported field name.
	ErrUnknownField = errors.New("unknown filter field")
)

// ReinforcementState tracks how often and how recently a record was accessed.
// ConfidenceBoost is always recomputed from the other fields; it is persisted
// only so listings can display it without a memory-service round trip.
type ReinforcementState struct {
	AccessCount     int       `json:"access_count"`
	FirstAccessed   time.Time `json:"first_accessed,omitzero"`
	LastAccessed    time.Time `json:"last_accessed,omitzero"`
	ConfidenceBoost float64   `json:"confidence_boost"`
}

// Payload holds the mutable metadata attached to a record. The vector itself
// is immutable once inserted; only the payload changes over a record's life.
type Payload struct {
	Filename   string    `json:"filename,omitempty"`
	SourcePath string    `json:"source_path,omitempty"`
	Name       string    `json:"name,omitempty"`
	Category   string    `json:"category,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`

	ReinforcementState
}

// Record is a single indexed identity: an embedding vector plus its payload.
// CreatedOrder preserves ingestion order so pagination is stable regardless of
// map iteration order.
type Record struct {
	ID           string    `json:"id"`
	Vector       []float32 `json:"vector"`
	Payload      Payload   `json:"payload"`
	CreatedOrder int       `json:"created_order"`
}

// Patch describes a shallow payload update. Nil fields are left untouched.
type Patch struct {
	Name          *string
	Category      *string
	Notes         *string
	Reinforcement *ReinforcementState
}

// Apply merges the patch into p. New values override, unset values are retained.
func (patch Patch) Apply(p *Payload) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	if patch.Reinforcement != nil {
		p.ReinforcementState = *patch.Reinforcement
	}
}

// Store defines the interface for vector record storage.
type Store interface {
	// Insert adds a record and returns its id. When the payload carries a
	// filename the id is derived deterministically from it, so re-inserting
	// the same file overwrites instead of duplicating.
	Insert(ctx context.Context, vector []float32, payload Payload) (string, error)

	// Get returns a record by id. Returns ErrNotFound if missing.
	Get(ctx context.Context, id string) (*Record, error)

	// Update applies a payload patch. The vector is untouched.
	Update(ctx context.Context, id string, patch Patch) error

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes multiple records. Missing ids are ignored.
	DeleteMany(ctx context.Context, ids []string) error

	// List returns a page of records ordered by CreatedOrder ascending.
	List(ctx context.Context, limit, offset int) ([]Record, error)

	// FilterByField returns up to limit records whose named payload field
	// equals value. Supported fields: "category", "filename", "name".
	FilterByField(ctx context.Context, field, value string, limit int) ([]Record, error)

	// Restore re-inserts a record under a fixed id, used when replaying the
	// deleted-records archive.
	Restore(ctx context.Context, id string, vector []float32, payload Payload) error

	// Snapshot returns a point-in-time copy of all records for scan-type
	// reads. Writes that commit after the snapshot is taken are not observed.
	Snapshot() []Record

	// Count returns the number of stored records.
	Count() int

	// Dimension returns the fixed vector dimensionality of the store.
	Dimension() int

	// Load reads the persisted snapshot, if any. A corrupt snapshot degrades
	// to an empty store rather than failing.
	Load(ctx context.Context) error

	// Save persists the current state crash-safely.
	Save(ctx context.Context) error
}
