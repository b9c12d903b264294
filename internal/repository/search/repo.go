package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Config names the index and its schema parameters.
type Config struct {
	IndexName  string
	KeyPrefix  string
	Dimensions int
	HNSWM      int
	HNSWEF     int
	// TextFields are the TEXT fields queried by full-text search.
	TextFields []string
}

// Repo runs index-backed retrieval over the article index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a search repository.
func New(s store, cfg Config) *Repo {
	if len(cfg.TextFields) == 0 {
		cfg.TextFields = []string{article.FieldTitleIT, article.FieldContentIT}
	}
	return &Repo{store: s, cfg: cfg}
}

// SupportsTextSearch proxies the capability check from the store.
func (r *Repo) SupportsTextSearch(ctx context.Context) bool {
	return r.store.SupportsTextSearch(ctx)
}

// KNN returns the k nearest articles by cosine similarity, best first.
// Raw scores are similarities in [0, 1].
func (r *Repo) KNN(ctx context.Context, vector []float32, k int, f filter.Expression) ([]result.Candidate, error) {
	q := &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  article.FieldEmbedding,
		Filters:      f,
		Vector:       vector,
		K:            k,
		ReturnFields: article.DisplayFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.IndexName, err)
	}
	return result.Normalize(toSources(sr)), nil
}

// TextOptions tunes fuzzy full-text matching.
type TextOptions struct {
	MaxEdits     int
	PrefixLength int
}

// Text runs fuzzy full-text search over the configured text fields. Raw
// scores are relative to the best hit, so the top candidate reads 1.
// Returns domain.ErrKeywordSearchNotSupported when the backend has no
// text search.
func (r *Repo) Text(
	ctx context.Context, query string, k int, f filter.Expression, opts TextOptions,
) ([]result.Candidate, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, domain.ErrKeywordSearchNotSupported
	}

	q := &db.TextQuery{
		IndexName:    r.cfg.IndexName,
		Fields:       r.cfg.TextFields,
		Query:        query,
		Filters:      f,
		MaxEdits:     opts.MaxEdits,
		PrefixLength: opts.PrefixLength,
		TopK:         k,
		ReturnFields: article.DisplayFields,
	}

	sr, err := r.store.SearchText(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrTextSearchUnsupported) {
			return nil, domain.ErrKeywordSearchNotSupported
		}
		return nil, fmt.Errorf("search text %s: %w", r.cfg.IndexName, err)
	}
	return result.Rescore(result.Normalize(toSources(sr))), nil
}

// tagSeparator keeps multi-word sector names with commas as one tag.
const tagSeparator = "|"

// Definition returns the article index schema.
func (r *Repo) Definition() (*db.IndexDefinition, error) {
	b := db.NewIndex(r.cfg.IndexName).Prefix(r.cfg.KeyPrefix)
	for _, f := range r.cfg.TextFields {
		b = b.Text(f)
	}
	return b.
		TagWithOpts(article.FieldSector, tagSeparator, false).
		TagWithOpts(article.FieldSource, tagSeparator, false).
		Tag(article.FieldStatus).
		Numeric(article.FieldArticleDate).
		VectorHNSW(article.FieldEmbedding, r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEF).
		Build()
}

// EnsureIndex creates the article index when it is missing.
// Returns true if it was created by this call.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return false, nil
	}

	def, err := r.Definition()
	if err != nil {
		return false, fmt.Errorf("index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return true, nil
}

func toSources(sr *db.SearchResult) []result.Source {
	if sr == nil {
		return nil
	}
	out := make([]result.Source, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, result.FromHash(e.Key, e.Fields, e.Score))
	}
	return out
}
