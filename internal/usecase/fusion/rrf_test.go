package fusion

import (
	"math"
	"slices"
	"testing"

	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
)

func makeCandidates(ids ...string) []result.Candidate {
	out := make([]result.Candidate, len(ids))
	for i, id := range ids {
		out[i] = result.Candidate{Article: article.Article{ID: id, TitleIT: "title-" + id}, Rank: i + 1}
	}
	return out
}

var equal = Weights{Vector: 1, Lexical: 1}

func TestFuse_DisjointLists(t *testing.T) {
	results := Fuse(makeCandidates("a", "b"), makeCandidates("c", "d"), equal)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	// equal weights: ties resolved by first appearance, vector list first
	if ids := result.IDs(results); !slices.Equal(ids, []string{"a", "c", "b", "d"}) {
		t.Errorf("unexpected order %v", ids)
	}
}

func TestFuse_OverlappingLists(t *testing.T) {
	vector := makeCandidates("a", "b", "c")
	lexical := makeCandidates("b", "d", "a")

	results := Fuse(vector, lexical, equal)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	// "b": 1/62 + 1/61 > "a": 1/61 + 1/63; "d": 1/62 > "c": 1/63
	if ids := result.IDs(results); !slices.Equal(ids, []string{"b", "a", "d", "c"}) {
		t.Errorf("unexpected order %v", ids)
	}

	b := results[0]
	if !b.HasSource(result.OriginVector) || !b.HasSource(result.OriginLexical) {
		t.Errorf("expected both sources, got %v", b.Sources)
	}
	if b.VectorRank != 2 || b.LexicalRank != 1 {
		t.Errorf("unexpected provenance ranks v=%d l=%d", b.VectorRank, b.LexicalRank)
	}
	d := results[2]
	if d.HasSource(result.OriginVector) || d.VectorRank != 0 || d.LexicalRank != 2 {
		t.Errorf("unexpected provenance for d: %+v", d)
	}
}

func TestFuse_EmptyInputs(t *testing.T) {
	t.Run("both empty", func(t *testing.T) {
		if results := Fuse(nil, nil, DefaultWeights); len(results) != 0 {
			t.Fatalf("expected 0 results, got %d", len(results))
		}
	})

	t.Run("vector empty keeps lexical order", func(t *testing.T) {
		results := Fuse(nil, makeCandidates("x", "y", "z"), DefaultWeights)
		if ids := result.IDs(results); !slices.Equal(ids, []string{"x", "y", "z"}) {
			t.Fatalf("unexpected order %v", ids)
		}
	})

	t.Run("lexical empty keeps vector order", func(t *testing.T) {
		results := Fuse(makeCandidates("x", "y", "z"), nil, DefaultWeights)
		if ids := result.IDs(results); !slices.Equal(ids, []string{"x", "y", "z"}) {
			t.Fatalf("unexpected order %v", ids)
		}
		for i, r := range results {
			want := 0.6 / float64(K+i+1)
			if math.Abs(r.HybridScore-want) > 1e-12 {
				t.Errorf("result %d hybrid = %v, want %v", i, r.HybridScore, want)
			}
			if r.Rank != i+1 {
				t.Errorf("result %d rank = %d", i, r.Rank)
			}
		}
	})
}

func TestFuse_Symmetric(t *testing.T) {
	a := makeCandidates("p", "q", "r")
	b := makeCandidates("r", "q", "p")

	ab := Fuse(a, b, equal)
	ba := Fuse(b, a, equal)

	scores := func(cs []result.Candidate) map[string]float64 {
		m := make(map[string]float64)
		for _, c := range cs {
			m[c.ID()] = c.HybridScore
		}
		return m
	}
	sa, sb := scores(ab), scores(ba)
	for id, s := range sa {
		if math.Abs(s-sb[id]) > 1e-12 {
			t.Errorf("%s: %v != %v", id, s, sb[id])
		}
	}
}

func TestFuse_ScoreFormula(t *testing.T) {
	results := Fuse(makeCandidates("a"), makeCandidates("a"), DefaultWeights)

	// rank 1 in both: 0.6/61 + 0.4/61 = 1/61, the best possible score
	expected := 1.0 / 61.0
	if math.Abs(results[0].HybridScore-expected) > 1e-12 {
		t.Errorf("expected hybrid %v, got %v", expected, results[0].HybridScore)
	}
	if math.Abs(results[0].Score-100) > 1e-9 {
		t.Errorf("expected display score 100, got %v", results[0].Score)
	}
}

func TestFuse_DisplayScoreVectorOnly(t *testing.T) {
	results := Fuse(makeCandidates("a"), nil, DefaultWeights)
	// (0.6/61) / (1.0/61) * 100
	if math.Abs(results[0].Score-60) > 1e-9 {
		t.Errorf("expected display score 60, got %v", results[0].Score)
	}
}

func TestFuse_WeightsChangeOrder(t *testing.T) {
	vector := makeCandidates("v")
	lexical := makeCandidates("l")

	if got := Fuse(vector, lexical, Weights{Vector: 0.2, Lexical: 0.8})[0].ID(); got != "l" {
		t.Errorf("lexical-heavy weights should rank l first, got %s", got)
	}
	if got := Fuse(vector, lexical, Weights{Vector: 0.8, Lexical: 0.2})[0].ID(); got != "v" {
		t.Errorf("vector-heavy weights should rank v first, got %s", got)
	}
}

func TestFuse_DuplicateInOneList(t *testing.T) {
	results := Fuse(makeCandidates("a", "a", "b"), nil, equal)
	if ids := result.IDs(results); !slices.Equal(ids, []string{"a", "b"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
	if results[1].VectorRank != 2 {
		t.Errorf("duplicates must not consume ranks, b has rank %d", results[1].VectorRank)
	}
}

func TestFuse_ZeroWeights(t *testing.T) {
	results := Fuse(makeCandidates("a"), makeCandidates("b"), Weights{})
	for _, r := range results {
		if r.Score != 0 {
			t.Errorf("expected 0 display score, got %v", r.Score)
		}
	}
}

func TestFuseK_CustomConstant(t *testing.T) {
	results := FuseK(makeCandidates("a"), nil, Weights{Vector: 1}, 10)
	if math.Abs(results[0].HybridScore-1.0/11.0) > 1e-12 {
		t.Errorf("unexpected hybrid %v", results[0].HybridScore)
	}
}
