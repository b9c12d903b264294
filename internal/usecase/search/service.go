package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/mode"
	"github.com/freethrow/tanalyst/internal/domain/search/request"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	"github.com/freethrow/tanalyst/internal/metrics"
	"github.com/freethrow/tanalyst/internal/usecase/fusion"
)

// Retriever names used in errors, logs and metrics.
const (
	retrieverVector  = "vector"
	retrieverLexical = "lexical"
)

// Options tunes the pipeline.
type Options struct {
	Weights fusion.Weights
	RRFK    int
	// CandidateMultiplier sizes each retriever's pool relative to the limit
	// when results are fused or reranked.
	CandidateMultiplier int
	// Dimensions of the query encoder, used to check stored embeddings.
	Dimensions int

	EmbedTimeout   time.Duration
	VectorTimeout  time.Duration
	LexicalTimeout time.Duration

	RelatedLimit     int
	RelatedCacheSize int
	RelatedTTL       time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Weights:             fusion.DefaultWeights,
		RRFK:                fusion.K,
		CandidateMultiplier: 2,
		RelatedLimit:        6,
		RelatedCacheSize:    512,
		RelatedTTL:          10 * time.Minute,
	}
}

// Deps are the collaborators of the service. Reranker may be nil.
type Deps struct {
	Embedder QueryEmbedder
	Vector   VectorRetriever
	Lexical  LexicalRetriever
	Reranker Reranker
	Articles ArticleReader
}

// Service runs vector, lexical and hybrid searches over the article corpus.
type Service struct {
	deps    Deps
	opts    Options
	logger  *zap.Logger
	related *expirable.LRU[string, []result.Candidate]
}

// New creates a search service. Zero options fall back to DefaultOptions.
func New(deps Deps, opts Options, logger *zap.Logger) *Service {
	def := DefaultOptions()
	if opts.Weights == (fusion.Weights{}) {
		opts.Weights = def.Weights
	}
	if opts.RRFK <= 0 {
		opts.RRFK = def.RRFK
	}
	if opts.CandidateMultiplier <= 0 {
		opts.CandidateMultiplier = def.CandidateMultiplier
	}
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = def.RelatedLimit
	}
	if opts.RelatedCacheSize <= 0 {
		opts.RelatedCacheSize = def.RelatedCacheSize
	}
	if opts.RelatedTTL <= 0 {
		opts.RelatedTTL = def.RelatedTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		related: expirable.NewLRU[string, []result.Candidate](opts.RelatedCacheSize, nil, opts.RelatedTTL),
	}
}

// VectorSearch ranks articles by similarity to the query embedding.
func (s *Service) VectorSearch(ctx context.Context, query string, limit int) ([]result.Candidate, error) {
	return s.simple(ctx, query, mode.Vector, limit)
}

// LexicalSearch ranks articles by keyword relevance.
func (s *Service) LexicalSearch(ctx context.Context, query string, limit int) ([]result.Candidate, error) {
	return s.simple(ctx, query, mode.Lexical, limit)
}

// HybridSearch fuses vector and lexical rankings.
func (s *Service) HybridSearch(ctx context.Context, query string, limit int) ([]result.Candidate, error) {
	return s.simple(ctx, query, mode.Hybrid, limit)
}

func (s *Service) simple(ctx context.Context, query string, m mode.Mode, limit int) ([]result.Candidate, error) {
	req, err := request.New(query, m, filter.Expression{}, limit, nil, false, 0)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, &req)
}

// Search executes req: retrieval for its mode, optional reranking, the
// min_score filter and truncation to the limit. Ranks are 1..N.
func (s *Service) Search(ctx context.Context, req *request.Request) ([]result.Candidate, error) {
	var (
		cands    []result.Candidate
		degraded bool
		err      error
	)

	pool := req.Limit()
	if req.Mode() == mode.Hybrid || req.Rerank() {
		pool *= s.opts.CandidateMultiplier
	}

	switch req.Mode() {
	case mode.Vector:
		cands, err = s.searchVector(ctx, req, pool)
	case mode.Lexical:
		cands, err = s.searchLexical(ctx, req, pool)
	case mode.Hybrid:
		cands, degraded, err = s.searchHybrid(ctx, req, pool)
	default:
		err = domain.Malformed("unsupported search mode: %s", req.Mode())
	}
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode()), "error").Inc()
		return nil, err
	}

	if req.Rerank() && s.deps.Reranker != nil && len(cands) > 0 {
		reranked, rerr := s.rerank(ctx, req, cands)
		if rerr != nil {
			degraded = true
			s.logger.Warn("Reranking unavailable, keeping retrieval order",
				zap.String("mode", string(req.Mode())),
				zap.Error(rerr),
			)
		} else {
			cands = reranked
		}
	}

	cands = finalize(cands, req.MinScore(), req.Limit())

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode()), outcome).Inc()
	return cands, nil
}

func (s *Service) searchVector(ctx context.Context, req *request.Request, k int) ([]result.Candidate, error) {
	vec, err := s.embed(ctx, req.Query())
	if err != nil {
		return nil, err
	}
	cands, err := s.retrieveVector(ctx, vec, k, req.Filters())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAllRetrieversFailed, err)
	}
	return cands, nil
}

func (s *Service) searchLexical(ctx context.Context, req *request.Request, k int) ([]result.Candidate, error) {
	cands, err := s.retrieveLexical(ctx, req.Query(), k, req.Filters())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAllRetrieversFailed, err)
	}
	return cands, nil
}

// searchHybrid runs both retrievers concurrently. A failing side is logged
// and fusion proceeds with the other; the query embedding counts as part of
// the vector side.
func (s *Service) searchHybrid(
	ctx context.Context, req *request.Request, k int,
) ([]result.Candidate, bool, error) {
	var (
		vector, lexical []result.Candidate
		vecErr, lexErr  error
		g               errgroup.Group
	)

	g.Go(func() error {
		vec, err := s.embed(ctx, req.Query())
		if err != nil {
			vecErr = domain.NewRetrieverError(retrieverVector, err)
			return nil
		}
		vector, vecErr = s.retrieveVector(ctx, vec, k, req.Filters())
		return nil
	})
	g.Go(func() error {
		lexical, lexErr = s.retrieveLexical(ctx, req.Query(), k, req.Filters())
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && lexErr != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrAllRetrieversFailed, errors.Join(vecErr, lexErr))
	}
	for _, err := range []error{vecErr, lexErr} {
		if err != nil {
			s.logger.Warn("Retriever failed, fusing the remaining ranking", zap.Error(err))
		}
	}

	weights := s.opts.Weights
	if w := req.Weights(); w != nil {
		weights = fusion.Weights{Vector: w.Vector, Lexical: w.Lexical}
	}

	start := time.Now()
	fused := fusion.FuseK(vector, lexical, weights, s.opts.RRFK)
	observe("fuse", start)

	return fused, vecErr != nil || lexErr != nil, nil
}

// embed vectorizes the query under the embed stage timeout. Every failure
// carries domain.ErrEmbedding.
func (s *Service) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	start := time.Now()
	defer observe("embed", start)

	vec, err := s.deps.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		}
		return nil, err
	}
	return vec, nil
}

func (s *Service) retrieveVector(
	ctx context.Context, vec []float32, k int, f filter.Expression,
) ([]result.Candidate, error) {
	ctx, cancel := withTimeout(ctx, s.opts.VectorTimeout)
	defer cancel()
	start := time.Now()
	defer observe(retrieverVector, start)

	cands, err := s.deps.Vector.SearchVector(ctx, vec, k, f)
	if err != nil {
		metrics.RetrieverFailuresTotal.WithLabelValues(retrieverVector).Inc()
		return nil, domain.NewRetrieverError(retrieverVector, err)
	}
	return cands, nil
}

func (s *Service) retrieveLexical(
	ctx context.Context, query string, k int, f filter.Expression,
) ([]result.Candidate, error) {
	ctx, cancel := withTimeout(ctx, s.opts.LexicalTimeout)
	defer cancel()
	start := time.Now()
	defer observe(retrieverLexical, start)

	cands, err := s.deps.Lexical.SearchText(ctx, query, k, f)
	if err != nil {
		metrics.RetrieverFailuresTotal.WithLabelValues(retrieverLexical).Inc()
		return nil, domain.NewRetrieverError(retrieverLexical, err)
	}
	return cands, nil
}

func (s *Service) rerank(
	ctx context.Context, req *request.Request, cands []result.Candidate,
) ([]result.Candidate, error) {
	start := time.Now()
	defer observe("rerank", start)
	return s.deps.Reranker.Rerank(ctx, req.Query(), cands, req.Limit())
}

// finalize drops candidates below minScore, truncates to limit and
// renumbers ranks.
func finalize(cands []result.Candidate, minScore float64, limit int) []result.Candidate {
	out := make([]result.Candidate, 0, min(len(cands), limit))
	for i := range cands {
		if len(out) == limit {
			break
		}
		if minScore > 0 && cands[i].Score < minScore {
			continue
		}
		c := cands[i]
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func observe(stage string, start time.Time) {
	metrics.SearchStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
