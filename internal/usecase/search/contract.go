package search

import (
	"context"

	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
)

// QueryEmbedder vectorizes search queries.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorRetriever returns candidates ranked by vector similarity.
type VectorRetriever interface {
	SearchVector(ctx context.Context, vec []float32, limit int, f filter.Expression) ([]result.Candidate, error)
}

// LexicalRetriever returns candidates ranked by keyword relevance.
type LexicalRetriever interface {
	SearchText(ctx context.Context, query string, limit int, f filter.Expression) ([]result.Candidate, error)
}

// Reranker re-orders a candidate pool and truncates it to limit.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []result.Candidate, limit int) ([]result.Candidate, error)
}

// ArticleReader reads articles for related-article lookups.
type ArticleReader interface {
	Get(ctx context.Context, id string) (article.Article, error)
	ListRelatedByTags(ctx context.Context, ref *article.Article, limit int) ([]article.Article, error)
}
