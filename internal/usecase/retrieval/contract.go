// Package retrieval produces ranked candidate lists from a query vector or
// query text. Each retriever is independent; fusion happens upstream.
package retrieval

import (
	"context"

	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	searchrepo "github.com/freethrow/tanalyst/internal/repository/search"
)

// VectorRetriever returns candidates ordered by vector similarity, best first.
type VectorRetriever interface {
	SearchVector(ctx context.Context, vec []float32, limit int, f filter.Expression) ([]result.Candidate, error)
}

// LexicalRetriever returns candidates ordered by text relevance, best first.
type LexicalRetriever interface {
	SearchText(ctx context.Context, query string, limit int, f filter.Expression) ([]result.Candidate, error)
}

type knnSearcher interface {
	KNN(ctx context.Context, vector []float32, k int, f filter.Expression) ([]result.Candidate, error)
}

type textSearcher interface {
	Text(ctx context.Context, query string, k int, f filter.Expression, opts searchrepo.TextOptions) ([]result.Candidate, error)
}

// CorpusReader lists articles with an embedding usable at dims.
type CorpusReader interface {
	ListEmbedded(ctx context.Context, dims int) ([]article.Article, error)
}

// TextCorpusReader lists every article.
type TextCorpusReader interface {
	ListAll(ctx context.Context) ([]article.Article, error)
}
