// Package result holds the candidate shape every retrieval stage works on
// and the normalizer that builds it from heterogeneous store records.
package result

import (
	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/article"
)

// Origin names the retriever a candidate came from.
type Origin string

// Retriever origins.
const (
	OriginVector  Origin = "vector"
	OriginLexical Origin = "lexical"
)

// Candidate is a transient, per-query projection of an article.
type Candidate struct {
	Article article.Article

	// RawScore is the retriever-native score (cosine similarity, relative
	// text relevance or fused RRF sum).
	RawScore float64
	// Score is the display percentage in [0, 100].
	Score float64
	// Rank is the 1-based position in the ranking that produced the candidate.
	Rank int

	HybridScore float64
	Sources     []Origin
	VectorRank  int
	LexicalRank int

	RerankScore    float64
	RerankStrategy string
}

// ID returns the stable article identifier.
func (c *Candidate) ID() string { return c.Article.ID }

// HasSource reports whether origin contributed to the candidate.
func (c *Candidate) HasSource(o Origin) bool {
	for _, s := range c.Sources {
		if s == o {
			return true
		}
	}
	return false
}

// RerankText is the text scored by rerankers: title plus a bounded content excerpt.
func (c *Candidate) RerankText(excerpt int) string {
	title := c.Article.SearchTitle()
	content := domain.Truncate(c.Article.SearchContent(), excerpt)
	switch {
	case title == "":
		return content
	case content == "":
		return title
	}
	return title + " " + content
}

// IDs returns candidate identifiers in order.
func IDs(cands []Candidate) []string {
	ids := make([]string, len(cands))
	for i := range cands {
		ids[i] = cands[i].ID()
	}
	return ids
}
