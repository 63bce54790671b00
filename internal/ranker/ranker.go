// Package ranker orders retrieval candidates for context assembly.
//
// Ranking is pure: cosine similarity against the query embedding, metadata
// filtering, overlap deduplication, and a stable ordering. No I/O happens
// here, which keeps the scoring behavior directly testable.
package ranker

import (
	"math"
	"sort"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
)

// overlapDedupeThreshold is the span-overlap fraction above which two chunks
// of the same document count as duplicates.
const overlapDedupeThreshold = 0.5

// Filters restricts candidates by document metadata.
type Filters struct {
	// Categories keeps candidates whose document shares at least one
	// category. Empty means no category filtering.
	Categories []string

	// UploadedAfter and UploadedBefore bound the document upload time.
	// Zero values disable the respective bound.
	UploadedAfter  time.Time
	UploadedBefore time.Time
}

// Result is a ranked candidate.
type Result struct {
	vectorstore.Candidate

	// Score is the cosine similarity to the query embedding.
	Score float64
}

// Rank filters, scores, deduplicates, and orders candidates.
//
// Chunks of the same document whose character spans overlap by more than
// half of the smaller span are duplicates by construction (the chunker's
// overlap window); only the higher scoring one survives. Results are
// ordered by descending score, with sequence index breaking ties so
// equally relevant chunks read in document order.
func Rank(queryEmbedding []float32, candidates []vectorstore.Candidate, filters Filters, limit int) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if !matchesFilters(c, filters) {
			continue
		}
		score := float64(c.Score)
		if len(c.Embedding) > 0 && len(c.Embedding) == len(queryEmbedding) {
			score = CosineSimilarity(queryEmbedding, c.Embedding)
		}
		results = append(results, Result{Candidate: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].SequenceIndex < results[j].SequenceIndex
	})

	deduped := dedupeOverlapping(results)

	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

// dedupeOverlapping walks score-ordered results and drops any chunk that
// overlaps a kept chunk of the same document beyond the threshold. Because
// the input is score-ordered, the kept chunk is always the higher scorer.
func dedupeOverlapping(results []Result) []Result {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		duplicate := false
		for _, k := range kept {
			if k.DocumentID != r.DocumentID {
				continue
			}
			if spanOverlapFraction(k.CharStart, k.CharEnd, r.CharStart, r.CharEnd) > overlapDedupeThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, r)
		}
	}
	return kept
}

// spanOverlapFraction returns the overlap of two half-open ranges as a
// fraction of the smaller range. Empty ranges never overlap.
func spanOverlapFraction(aStart, aEnd, bStart, bEnd int) float64 {
	overlap := min(aEnd, bEnd) - max(aStart, bStart)
	if overlap <= 0 {
		return 0
	}
	smaller := min(aEnd-aStart, bEnd-bStart)
	if smaller <= 0 {
		return 0
	}
	return float64(overlap) / float64(smaller)
}

func matchesFilters(c vectorstore.Candidate, filters Filters) bool {
	if len(filters.Categories) > 0 && !intersects(c.Categories, filters.Categories) {
		return false
	}
	if !filters.UploadedAfter.IsZero() && c.UploadedAt.Before(filters.UploadedAfter) {
		return false
	}
	if !filters.UploadedBefore.IsZero() && c.UploadedAt.After(filters.UploadedBefore) {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched lengths or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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
