package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	"github.com/freethrow/tanalyst/internal/domain/similarity"
)

// IndexVector delegates nearest-neighbour search to the store's vector index.
type IndexVector struct {
	index knnSearcher
}

// NewIndexVector creates an index-backed vector retriever.
func NewIndexVector(index knnSearcher) *IndexVector {
	return &IndexVector{index: index}
}

// SearchVector implements VectorRetriever.
func (r *IndexVector) SearchVector(
	ctx context.Context, vec []float32, limit int, f filter.Expression,
) ([]result.Candidate, error) {
	if err := checkVectorArgs(vec, limit); err != nil {
		return nil, err
	}
	cands, err := r.index.KNN(ctx, vec, limit, f)
	if err != nil {
		return nil, fmt.Errorf("index knn: %w", err)
	}
	return cands, nil
}

// BruteForce scores every eligible article in memory. Suitable up to
// around 10^5 documents.
type BruteForce struct {
	corpus CorpusReader
	dims   int
}

// NewBruteForce creates an exhaustive vector retriever for vectors of length dims.
func NewBruteForce(corpus CorpusReader, dims int) *BruteForce {
	return &BruteForce{corpus: corpus, dims: dims}
}

type scored struct {
	a     article.Article
	score float64
}

// SearchVector implements VectorRetriever. Articles whose embedding is
// missing or of another dimensionality are skipped, as are non-positive
// similarities.
func (r *BruteForce) SearchVector(
	ctx context.Context, vec []float32, limit int, f filter.Expression,
) ([]result.Candidate, error) {
	if err := checkVectorArgs(vec, limit); err != nil {
		return nil, err
	}

	docs, err := r.corpus.ListEmbedded(ctx, r.dims)
	if err != nil {
		return nil, fmt.Errorf("list embedded: %w", err)
	}

	hits := make([]scored, 0, len(docs))
	for i := range docs {
		a := &docs[i]
		if !a.Embedding.Eligible(len(vec)) || !f.Matches(a) {
			continue
		}
		s := similarity.Cosine(vec, a.Embedding.Vector)
		if s <= 0 {
			continue
		}
		hits = append(hits, scored{a: *a, score: s})
	}

	return rankScored(hits, limit), nil
}

func rankScored(hits []scored, limit int) []result.Candidate {
	slices.SortStableFunc(hits, func(x, y scored) int {
		return cmp.Compare(y.score, x.score)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	src := make([]result.Source, len(hits))
	for i := range hits {
		src[i] = result.FromArticle(hits[i].a, hits[i].score)
	}
	return result.Normalize(src)
}

func checkVectorArgs(vec []float32, limit int) error {
	if len(vec) == 0 {
		return domain.Malformed("query vector is empty")
	}
	if limit <= 0 {
		return domain.Malformed("limit must be positive, got %d", limit)
	}
	return nil
}
