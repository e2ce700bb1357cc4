package scoring

import (
	"bytes"
	"math"
	"sort"

	"go-screening-backend/internal/domain"
)

// Rank orders candidates by overall score (descending), breaking ties by
// analysis recency (most recent first) and then by resume id so the result is
// a pure function of its input. The input slice is not modified.
func Rank(candidates []domain.RankCandidate) []domain.RankEntry {
	sorted := make([]domain.RankCandidate, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Overall != b.Overall {
			return a.Overall > b.Overall
		}
		if !a.AnalyzedAt.Equal(b.AnalyzedAt) {
			return a.AnalyzedAt.After(b.AnalyzedAt)
		}
		return bytes.Compare(a.ResumeID[:], b.ResumeID[:]) < 0
	})

	n := len(sorted)
	entries := make([]domain.RankEntry, n)
	for i, c := range sorted {
		rank := i + 1
		entries[i] = domain.RankEntry{
			ResumeID:   c.ResumeID,
			Overall:    c.Overall,
			Rank:       rank,
			Percentile: Percentile(rank, n),
		}
	}
	return entries
}

// Percentile is round(100 * (n - rank + 1) / n). Rank 1 is always 100.
func Percentile(rank, n int) int {
	if n <= 0 || rank < 1 || rank > n {
		return 0
	}
	return int(math.Round(100 * float64(n-rank+1) / float64(n)))
}
