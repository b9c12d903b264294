// Package rerank re-orders retrieval candidates with the best scoring
// strategy available, degrading from remote models to a lexical heuristic.
package rerank

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	"github.com/freethrow/tanalyst/internal/metrics"
)

// DefaultExcerpt is the content prefix length scored with the title.
const DefaultExcerpt = 500

// Strategy scores texts against a query, one score per text in input order.
type Strategy interface {
	Name() string
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Options configures the service.
type Options struct {
	// Excerpt bounds the content characters sent per candidate.
	Excerpt int
	// Timeout bounds each strategy attempt. Zero means no bound.
	Timeout time.Duration
}

// Service tries strategies in order until one scores every candidate.
type Service struct {
	strategies []Strategy
	opts       Options
	logger     *zap.Logger
}

// NewService creates the reranker. Strategies are tried in the given order.
func NewService(strategies []Strategy, opts Options, logger *zap.Logger) *Service {
	if opts.Excerpt <= 0 {
		opts.Excerpt = DefaultExcerpt
	}
	return &Service{strategies: strategies, opts: opts, logger: logger}
}

// Rerank scores every candidate, sorts by descending score (ties keep input
// order), truncates to limit and assigns ranks 1..N. A strategy that
// errors, times out or returns the wrong number of scores is skipped.
func (s *Service) Rerank(
	ctx context.Context, query string, cands []result.Candidate, limit int,
) ([]result.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Malformed("rerank query is required")
	}
	if limit <= 0 {
		return nil, domain.Malformed("limit must be positive, got %d", limit)
	}
	if len(cands) == 0 {
		return []result.Candidate{}, nil
	}

	texts := make([]string, len(cands))
	for i := range cands {
		texts[i] = cands[i].RerankText(s.opts.Excerpt)
	}

	for _, st := range s.strategies {
		scores, err := s.try(ctx, st, query, texts)
		if err != nil {
			metrics.RerankStrategyTotal.WithLabelValues(st.Name(), "failed").Inc()
			s.logger.Warn("Rerank strategy failed, falling back",
				zap.String("strategy", st.Name()),
				zap.Int("candidates", len(cands)),
				zap.Error(err),
			)
			continue
		}
		metrics.RerankStrategyTotal.WithLabelValues(st.Name(), "ok").Inc()
		return apply(cands, scores, st.Name(), limit), nil
	}

	return nil, fmt.Errorf("%w: %d strategies failed", domain.ErrRerankUnavailable, len(s.strategies))
}

func (s *Service) try(ctx context.Context, st Strategy, query string, texts []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	scores, err := st.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("got %d scores for %d candidates", len(scores), len(texts))
	}
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("score %d is not finite", i)
		}
	}
	return scores, nil
}

func apply(cands []result.Candidate, scores []float64, strategy string, limit int) []result.Candidate {
	out := make([]result.Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].RerankScore = scores[i]
		out[i].RerankStrategy = strategy
	}

	slices.SortStableFunc(out, func(a, b result.Candidate) int {
		return cmp.Compare(b.RerankScore, a.RerankScore)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
