package article

import (
	"context"
	"fmt"
	"strings"

	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain"
	domarticle "github.com/freethrow/tanalyst/internal/domain/article"
)

// fetchBatch bounds the number of keys per HGetAllMulti round-trip.
const fetchBatch = 200

// store is the consumer interface for article records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo reads the article corpus and writes embeddings back.
type Repo struct {
	store  store
	prefix string
}

// New creates an article repository over keys "<prefix><id>".
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Get returns an article by ID, or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domarticle.Article, error) {
	key := r.key(id)
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domarticle.Article{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(fields) == 0 {
		return domarticle.Article{}, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return domarticle.FromFields(id, fields), nil
}

// ListAll loads every article in the corpus. Keys that vanish between scan
// and fetch are skipped.
func (r *Repo) ListAll(ctx context.Context) ([]domarticle.Article, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan articles: %w", err)
	}

	out := make([]domarticle.Article, 0, len(keys))
	for start := 0; start < len(keys); start += fetchBatch {
		end := min(start+fetchBatch, len(keys))
		batch := keys[start:end]

		maps, err := r.store.HGetAllMulti(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("fetch articles: %w", err)
		}
		for i, m := range maps {
			if len(m) == 0 {
				continue
			}
			out = append(out, domarticle.FromFields(r.id(batch[i]), m))
		}
	}
	return out, nil
}

// ListEmbedded returns translated articles whose embedding is eligible for dims.
func (r *Repo) ListEmbedded(ctx context.Context, dims int) ([]domarticle.Article, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for i := range all {
		if all[i].Embedding.Eligible(dims) && all[i].HasSearchText() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// ListMissingEmbedding returns articles with searchable text but no eligible
// embedding, up to limit (0 means no limit).
func (r *Repo) ListMissingEmbedding(ctx context.Context, dims, limit int) ([]domarticle.Article, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domarticle.Article
	for i := range all {
		if all[i].Embedding.Eligible(dims) || !all[i].HasSearchText() {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListRelatedByTags returns articles sharing the sector or the source with
// the reference, excluding the reference itself, newest first.
func (r *Repo) ListRelatedByTags(ctx context.Context, ref *domarticle.Article, limit int) ([]domarticle.Article, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domarticle.Article
	for i := range all {
		a := &all[i]
		if a.ID == ref.ID {
			continue
		}
		sameSector := ref.Sector != "" && strings.EqualFold(a.Sector, ref.Sector)
		sameSource := ref.Source != "" && strings.EqualFold(a.Source, ref.Source)
		if sameSector || sameSource {
			out = append(out, *a)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveEmbedding writes the embedding fields of one article.
func (r *Repo) SaveEmbedding(ctx context.Context, id string, e *domarticle.Embedding) error {
	key := r.key(id)
	if err := r.store.HSet(ctx, key, domarticle.EmbeddingFields(e)); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// SaveEmbeddings writes several embeddings in one pipelined round-trip.
func (r *Repo) SaveEmbeddings(ctx context.Context, embeddings map[string]*domarticle.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(embeddings))
	for id, e := range embeddings {
		items = append(items, db.HashSetItem{Key: r.key(id), Fields: domarticle.EmbeddingFields(e)})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset embeddings: %w", err)
	}
	return nil
}

func (r *Repo) key(id string) string { return r.prefix + id }

func (r *Repo) id(key string) string { return strings.TrimPrefix(key, r.prefix) }
