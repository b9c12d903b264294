package rerank

import (
	"context"
	"math"
	"strings"

	"github.com/freethrow/tanalyst/internal/domain/textnorm"
)

// Heuristic weights. Exact phrase containment dominates, then phrase
// position, then per-token frequency and query coverage.
const (
	phraseBonus      = 10.0
	positionMax      = 5.0
	positionDecay    = 100.0
	occurrenceWeight = 0.2
	coverageWeight   = 5.0
	heuristicScale   = 20.0
)

// Heuristic scores lexical overlap without any model. It never fails.
type Heuristic struct{}

// Name identifies the strategy in logs and metrics.
func (Heuristic) Name() string { return "heuristic" }

// Score implements Strategy.
func (h Heuristic) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	q := textnorm.Tokens(query)
	scores := make([]float64, len(texts))
	for i, t := range texts {
		scores[i] = HeuristicScore(q, t)
	}
	return scores, nil
}

// HeuristicScore rates text against folded query tokens in [0, 1].
// No query tokens means no evidence, so the score is 0.
func HeuristicScore(queryTokens []string, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	doc := textnorm.Spaced(text)
	docTokens := strings.Fields(doc)
	var total float64

	if pos := strings.Index(doc, strings.Join(queryTokens, " ")); pos >= 0 {
		total += phraseBonus
		total += math.Max(0, positionMax-float64(pos)/positionDecay)
	}

	counts := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		counts[t]++
	}

	matched := 0
	for _, qt := range queryTokens {
		if n := counts[qt]; n > 0 {
			matched++
			total += float64(n) * occurrenceWeight
		}
	}
	total += coverageWeight * float64(matched) / float64(len(queryTokens))

	return math.Min(total/heuristicScale, 1)
}
