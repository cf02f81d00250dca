package retrieval

import (
	"math"
	"sort"
)

// CosineSim returns the cosine similarity of a and b, or 0 when the
// dimensions differ or either vector is zero.
func CosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Candidate is a stored vector with its payload.
type Candidate struct {
	ID     string
	Text   string
	Vector []float32
}

// Hit is a ranked candidate.
type Hit struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Rank returns the top-k candidates scoring at least minScore against query,
// best first. Ties keep candidate order. topK <= 0 keeps every match.
func Rank(query []float32, candidates []Candidate, topK int, minScore float64) []Hit {
	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		if s := CosineSim(query, c.Vector); s >= minScore {
			hits = append(hits, Hit{ID: c.ID, Text: c.Text, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
