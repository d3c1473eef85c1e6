package casemeta

import (
	"testing"
	"time"
)

func TestSeedFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{name: "plain filename", filename: "suspect_001.jpg", want: "suspect_001"},
		{name: "augmented variant shares the original seed", filename: "suspect_001_aug_3.jpg", want: "suspect_001"},
		{name: "multi-digit augmentation index", filename: "suspect_001_aug_12.png", want: "suspect_001"},
		{name: "no extension", filename: "suspect_001", want: "suspect_001"},
		{name: "path is stripped", filename: "corpus/faces/suspect_001.jpg", want: "suspect_001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeedFromFilename(tt.filename); got != tt.want {
				t.Errorf("SeedFromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) }
	s := NewSynthesizer(WithClock(now))

	a := s.Synthesize("suspect_001")
	b := s.Synthesize("suspect_001")

	if a.Category != b.Category {
		t.Errorf("categories differ for identical seed: %q vs %q", a.Category, b.Category)
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		t.Errorf("timestamps differ for identical seed: %v vs %v", a.Timestamp, b.Timestamp)
	}
}

func TestSynthesize_AugmentedVariantsShareMetadata(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) }
	s := NewSynthesizer(WithClock(now))

	original := s.Synthesize(SeedFromFilename("suspect_001.jpg"))
	augmented := s.Synthesize(SeedFromFilename("suspect_001_aug_7.jpg"))

	if original.Category != augmented.Category || !original.Timestamp.Equal(augmented.Timestamp) {
		t.Errorf("augmented variant metadata %+v differs from original %+v", augmented, original)
	}
}

func TestSynthesize_CategoryFromFixedSet(t *testing.T) {
	s := NewSynthesizer()
	valid := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		valid[c] = true
	}

	seeds := []string{"a", "b", "c", "suspect_001", "suspect_999", "x_y_z"}
	for _, seed := range seeds {
		meta := s.Synthesize(seed)
		if !valid[meta.Category] {
			t.Errorf("Synthesize(%q) category %q not in the fixed set", seed, meta.Category)
		}
	}
}

func TestSynthesize_TimestampWithinBounds(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	s := NewSynthesizer(WithClock(func() time.Time { return fixed }))

	anchor := fixed.Truncate(24 * time.Hour)
	oldest := anchor.AddDate(0, 0, -DefaultMaxDayOffset)

	for _, seed := range []string{"p1", "p2", "p3", "p4", "p5"} {
		meta := s.Synthesize(seed)
		if meta.Timestamp.After(anchor) {
			t.Errorf("Synthesize(%q) timestamp %v is in the future of the anchor %v", seed, meta.Timestamp, anchor)
		}
		if meta.Timestamp.Before(oldest) {
			t.Errorf("Synthesize(%q) timestamp %v is older than the %d-day bound", seed, meta.Timestamp, DefaultMaxDayOffset)
		}
	}
}

func TestSynthesize_StableWithinDay(t *testing.T) {
	morning := time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 1, 23, 58, 0, 0, time.UTC)

	first := NewSynthesizer(WithClock(func() time.Time { return morning })).Synthesize("suspect_001")
	second := NewSynthesizer(WithClock(func() time.Time { return evening })).Synthesize("suspect_001")

	if !first.Timestamp.Equal(second.Timestamp) {
		t.Errorf("same-day timestamps differ: %v vs %v", first.Timestamp, second.Timestamp)
	}
}

func TestSynthesize_MaxDayOffsetOption(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSynthesizer(WithClock(func() time.Time { return fixed }), WithMaxDayOffset(0))

	meta := s.Synthesize("anything")
	if !meta.Timestamp.Equal(fixed.Truncate(24 * time.Hour)) {
		t.Errorf("with a zero offset bound the timestamp must be the anchor day, got %v", meta.Timestamp)
	}
}
