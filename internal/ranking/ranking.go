// Package ranking implements the brute-force nearest-neighbor stage: exact
// cosine similarity over a store snapshot with deterministic ordering.
package ranking

import (
	"math"
	"sort"

	"facetrace/internal/vectorstore"
)

// Match pairs a record with its similarity score against the query.
type Match struct {
	Score  float64
	Record vectorstore.Record
}

// CosineSimilarity computes dot(a,b)/(|a|*|b|). A zero norm on either side
// scores 0, never an error. Callers must pass equal-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every candidate against the query and returns the top-K,
// descending by score. Candidates whose dimensionality differs from the query
// are excluded outright so they never consume a top-K slot. Ties break by
// CreatedOrder ascending, keeping results reproducible.
func Rank(query []float32, candidates []vectorstore.Record, topK int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		if len(rec.Vector) != len(query) {
			continue
		}
		matches = append(matches, Match{
			Score:  CosineSimilarity(query, rec.Vector),
			Record: rec,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.CreatedOrder < matches[j].Record.CreatedOrder
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
