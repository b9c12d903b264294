package search

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
)

// Related returns articles similar to articleID, excluding the article
// itself. When the article's embedding yields no neighbours, articles
// sharing its sector or source are returned instead.
// Results are cached per article and limit.
func (s *Service) Related(ctx context.Context, articleID string, limit int) ([]result.Candidate, error) {
	if limit <= 0 {
		limit = s.opts.RelatedLimit
	}
	key := articleID + ":" + strconv.Itoa(limit)
	if cached, ok := s.related.Get(key); ok {
		return cached, nil
	}

	ref, err := s.deps.Articles.Get(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}

	var cands []result.Candidate
	if ref.Embedding.Eligible(s.opts.Dimensions) {
		cands, err = s.similar(ctx, &ref, limit)
		if err != nil {
			s.logger.Warn("Related by embedding failed, using sector and source",
				zap.String("article_id", articleID),
				zap.Error(err),
			)
		}
	}
	if len(cands) == 0 {
		cands, err = s.sameTags(ctx, &ref, limit)
		if err != nil {
			return nil, err
		}
	}

	s.related.Add(key, cands)
	return cands, nil
}

func (s *Service) similar(ctx context.Context, ref *article.Article, limit int) ([]result.Candidate, error) {
	// one extra slot for the reference itself
	hits, err := s.retrieveVector(ctx, ref.Embedding.Vector, limit+1, filter.Expression{})
	if err != nil {
		return nil, err
	}
	out := make([]result.Candidate, 0, limit)
	for i := range hits {
		if hits[i].ID() == ref.ID {
			continue
		}
		if len(out) == limit {
			break
		}
		c := hits[i]
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) sameTags(ctx context.Context, ref *article.Article, limit int) ([]result.Candidate, error) {
	arts, err := s.deps.Articles.ListRelatedByTags(ctx, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("list related by tags: %w", err)
	}
	src := make([]result.Source, len(arts))
	for i := range arts {
		src[i] = result.FromArticle(arts[i], 0)
	}
	return result.Normalize(src), nil
}
