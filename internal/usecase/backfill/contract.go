package backfill

import (
	"context"

	"github.com/freethrow/tanalyst/internal/domain/article"
)

// ArticleStore lists articles lacking embeddings and writes new ones back.
type ArticleStore interface {
	ListMissingEmbedding(ctx context.Context, dims, limit int) ([]article.Article, error)
	SaveEmbeddings(ctx context.Context, embeddings map[string]*article.Embedding) error
}

// DocumentEmbedder vectorizes article texts as documents.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}
