// Package fusion merges independent rankings with weighted Reciprocal Rank Fusion.
package fusion

import (
	"cmp"
	"math"
	"slices"

	"github.com/freethrow/tanalyst/internal/domain/search/result"
)

// K is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const K = 60

// Weights scale each ranking's contribution.
type Weights struct {
	Vector  float64
	Lexical float64
}

// DefaultWeights favour semantic similarity over keyword overlap.
var DefaultWeights = Weights{Vector: 0.6, Lexical: 0.4}

// Fuse merges vector and lexical rankings with K = 60. See FuseK.
func Fuse(vector, lexical []result.Candidate, w Weights) []result.Candidate {
	return FuseK(vector, lexical, w, K)
}

// FuseK merges two rankings. A candidate at 1-based position r of a list
// with weight w contributes w/(k+r); a candidate in both lists sums both.
// Output is ordered by descending fused score, ties by first appearance
// (vector list first). Display scores rescale the fused score against the
// best possible one, (wv+wl)/(k+1), to [0, 100].
func FuseK(vector, lexical []result.Candidate, w Weights, k int) []result.Candidate {
	if k <= 0 {
		k = K
	}

	type fused struct {
		cand  result.Candidate
		score float64
		order int
	}

	merged := make(map[string]*fused, len(vector)+len(lexical))
	var order []*fused

	add := func(list []result.Candidate, weight float64, origin result.Origin) {
		rank := 0
		seen := make(map[string]struct{}, len(list))
		for i := range list {
			id := list[i].ID()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rank++

			f, ok := merged[id]
			if !ok {
				f = &fused{cand: list[i], order: len(order)}
				f.cand.Sources = nil
				f.cand.VectorRank, f.cand.LexicalRank = 0, 0
				merged[id] = f
				order = append(order, f)
			}
			f.score += weight / float64(k+rank)
			f.cand.Sources = append(f.cand.Sources, origin)
			if origin == result.OriginVector {
				f.cand.VectorRank = rank
			} else {
				f.cand.LexicalRank = rank
			}
		}
	}
	add(vector, w.Vector, result.OriginVector)
	add(lexical, w.Lexical, result.OriginLexical)

	slices.SortStableFunc(order, func(a, b *fused) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})

	best := (w.Vector + w.Lexical) / float64(k+1)
	out := make([]result.Candidate, len(order))
	for i, f := range order {
		c := f.cand
		c.RawScore = f.score
		c.HybridScore = f.score
		c.Score = displayScore(f.score, best)
		c.Rank = i + 1
		out[i] = c
	}
	return out
}

func displayScore(score, best float64) float64 {
	if best <= 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return math.Max(0, math.Min(100, score/best*100))
}
