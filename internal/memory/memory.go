// Package memory implements the reinforcement model that adjusts record
// confidence based on access frequency and recency. All functions are pure
// over their explicit inputs; nothing here persists state.
package memory

import (
	"math"
	"time"

	"facetrace/internal/vectorstore"
)

const (
	// DefaultMaxBoost is the maximum confidence boost a record can earn.
	DefaultMaxBoost = 0.3
	// DefaultHalfLifeDays is the half-life of the temporal decay.
	DefaultHalfLifeDays = 30.0
	// DefaultDecayThreshold is the decay factor below which a record is
	// considered decayed (low priority).
	DefaultDecayThreshold = 0.1

	hoursPerDay = 24.0
)

// Params holds the tunables of the reinforcement model.
type Params struct {
	MaxBoost     float64
	HalfLifeDays float64
}

// DefaultParams returns the standard reinforcement parameters.
func DefaultParams() Params {
	return Params{MaxBoost: DefaultMaxBoost, HalfLifeDays: DefaultHalfLifeDays}
}

// AccessBoost maps an access count to a confidence boost using logarithmic
// scaling: maxBoost * ln(1+count)/ln(100). Zero at count 0, monotonically
// increasing, capped at MaxBoost (count 99 reaches the cap exactly).
func (p Params) AccessBoost(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	normalized := math.Log(1+float64(accessCount)) / math.Log(100)
	return math.Min(normalized*p.MaxBoost, p.MaxBoost)
}

// TemporalDecay returns 0.5^(daysElapsed/halfLife), in (0,1]. Zero elapsed
// time decays nothing; a lastAccessed in the future clamps to 1.
func (p Params) TemporalDecay(lastAccessed, now time.Time) float64 {
	daysElapsed := now.Sub(lastAccessed).Hours() / hoursPerDay
	if daysElapsed <= 0 {
		return 1
	}
	return math.Pow(0.5, daysElapsed/p.HalfLifeDays)
}

// Reinforcement combines access boost and temporal decay: the boost earned by
// repeated access erodes the longer the record goes untouched.
func (p Params) Reinforcement(accessCount int, lastAccessed, now time.Time) float64 {
	return p.AccessBoost(accessCount) * p.TemporalDecay(lastAccessed, now)
}

// UpdateOnAccess returns a copy of the payload with the access counted:
// incremented count, refreshed lastAccessed, firstAccessed initialized if
// absent, and the confidence boost recomputed. The caller persists the result;
// call it exactly once per read that counts as an access.
func (p Params) UpdateOnAccess(payload vectorstore.Payload, now time.Time) vectorstore.Payload {
	updated := payload
	updated.AccessCount++
	if updated.FirstAccessed.IsZero() {
		updated.FirstAccessed = now
	}
	updated.LastAccessed = now
	updated.ConfidenceBoost = p.Reinforcement(updated.AccessCount, updated.LastAccessed, now)
	return updated
}

// ApplyBoost adds the stored confidence boost to a base score, capped at 1.
func (p Params) ApplyBoost(baseConfidence float64, payload vectorstore.Payload) float64 {
	return math.Min(baseConfidence+payload.ConfidenceBoost, 1)
}

// IsDecayed reports whether the record's decay factor dropped below threshold.
func (p Params) IsDecayed(lastAccessed, now time.Time, threshold float64) bool {
	return p.TemporalDecay(lastAccessed, now) < threshold
}

// Stats is the read-only view of a record's reinforcement state.
type Stats struct {
	AccessCount        int       `json:"access_count"`
	FirstAccessed      time.Time `json:"first_accessed,omitzero"`
	LastAccessed       time.Time `json:"last_accessed,omitzero"`
	AccessBoost        float64   `json:"access_boost"`
	TemporalDecay      float64   `json:"temporal_decay"`
	ReinforcementScore float64   `json:"reinforcement_score"`
	IsDecayed          bool      `json:"is_decayed"`
}

// StatsFor computes reinforcement statistics without counting an access.
func (p Params) StatsFor(payload vectorstore.Payload, now time.Time) Stats {
	last := payload.LastAccessed
	if last.IsZero() {
		last = now
	}
	return Stats{
		AccessCount:        payload.AccessCount,
		FirstAccessed:      payload.FirstAccessed,
		LastAccessed:       payload.LastAccessed,
		AccessBoost:        p.AccessBoost(payload.AccessCount),
		TemporalDecay:      p.TemporalDecay(last, now),
		ReinforcementScore: p.Reinforcement(payload.AccessCount, last, now),
		IsDecayed:          p.IsDecayed(last, now, DefaultDecayThreshold),
	}
}
