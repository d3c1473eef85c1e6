// Package casemeta derives display metadata (case category, case date) for a
// record from a seed string. The derivation is a pure hash-seeded pseudo-random
// stream: identical seeds synthesize identical metadata in every process, and
// each call uses its own generator so concurrent calls cannot interfere.
package casemeta

import (
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
)

// Categories is the fixed ordered label set cases are drawn from.
var Categories = []string{
	"Fraud",
	"Theft",
	"Cybercrime",
	"Assault",
	"Vandalism",
	"Burglary",
	"Identity Theft",
	"Embezzlement",
}

// DefaultMaxDayOffset bounds how far in the past a synthesized case date lies.
const DefaultMaxDayOffset = 1000

// Metadata is the synthesized display metadata for a record.
type Metadata struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Synthesizer produces deterministic metadata from seed strings.
type Synthesizer struct {
	maxDayOffset int
	now          func() time.Time
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMaxDayOffset overrides the upper bound of the day-offset draw.
func WithMaxDayOffset(days int) Option {
	return func(s *Synthesizer) { s.maxDayOffset = days }
}

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// NewSynthesizer creates a Synthesizer with the default day-offset bound.
func NewSynthesizer(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		maxDayOffset: DefaultMaxDayOffset,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedFromFilename reduces a corpus filename to its stable seed: the base name
// without extension and without any "_aug_N" augmentation suffix, so every
// augmented variant of an image shares its original's metadata.
func SeedFromFilename(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if i := strings.Index(stem, "_aug_"); i >= 0 {
		stem = stem[:i]
	}
	return stem
}

// Synthesize derives metadata from the seed. The seed bytes are hashed and the
// hash seeds a generator used exclusively for this call: one category draw,
// one day-offset draw. The case date is anchored to the current UTC day so the
// result is stable across calls.
func (s *Synthesizer) Synthesize(seed string) Metadata {
	sum := md5.Sum([]byte(seed))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(sum[:8]))))

	category := Categories[rng.Intn(len(Categories))]
	dayOffset := rng.Intn(s.maxDayOffset + 1)

	anchor := s.now().UTC().Truncate(24 * time.Hour)
	return Metadata{
		Category:  category,
		Timestamp: anchor.AddDate(0, 0, -dayOffset),
	}
}
