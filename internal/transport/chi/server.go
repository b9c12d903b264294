package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/article"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/mode"
	"github.com/freethrow/tanalyst/internal/domain/search/request"
	"github.com/freethrow/tanalyst/internal/domain/search/result"
	logpkg "github.com/freethrow/tanalyst/internal/logger"
	embeddinguc "github.com/freethrow/tanalyst/internal/usecase/embedding"
	healthuc "github.com/freethrow/tanalyst/internal/usecase/health"
)

// Searcher runs searches and related-article lookups.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) ([]result.Candidate, error)
	Related(ctx context.Context, articleID string, limit int) ([]result.Candidate, error)
}

// StatsReader reports embedding coverage.
type StatsReader interface {
	Stats(ctx context.Context) (embeddinguc.Stats, error)
}

// HealthReporter aggregates component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// Options holds request defaults.
type Options struct {
	DefaultMode   mode.Mode
	DefaultLimit  int
	RerankDefault bool
	// ExcerptChars bounds the content excerpt in responses.
	ExcerptChars int
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements ServerInterface.
type Server struct {
	search        Searcher
	stats         StatsReader
	health        HealthReporter
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	stats StatsReader,
	health HealthReporter,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.DefaultMode == "" {
		opts.DefaultMode = mode.Hybrid
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = request.DefaultLimit
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 300
	}
	s := &Server{
		search: search,
		stats:  stats,
		health: health,
		opts:   opts,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrMalformedInput, http.StatusBadRequest, ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorResponseCodeArticleNotFound),
		sentinelHandler(domain.ErrAllRetrieversFailed, http.StatusServiceUnavailable, ErrorResponseCodeRetrievalFailed),
		sentinelHandler(domain.ErrEmbedding, http.StatusServiceUnavailable, ErrorResponseCodeEmbeddingFailed),
		sentinelHandler(domain.ErrRerankUnavailable, http.StatusServiceUnavailable, ErrorResponseCodeServiceUnavailable),
	}
	return s
}

// SearchArticles handles GET /search.
func (s *Server) SearchArticles(w http.ResponseWriter, r *http.Request, params SearchParams) {
	req, err := s.searchRequest(params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:    req.Query(),
		Mode:     string(req.Mode()),
		Reranked: req.Rerank(),
		Limit:    req.Limit(),
		Total:    len(results),
		Items:    s.articleResults(results),
	})
}

// RelatedArticles handles GET /articles/{id}/related.
func (s *Server) RelatedArticles(w http.ResponseWriter, r *http.Request, id string, params RelatedParams) {
	limit := 0
	if params.Limit != nil {
		if *params.Limit <= 0 || *params.Limit > request.MaxLimit {
			writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "limit must be between 1 and 100")
			return
		}
		limit = *params.Limit
	}

	results, err := s.search.Related(r.Context(), id, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RelatedResponse{
		ArticleID: id,
		Total:     len(results),
		Items:     s.articleResults(results),
	})
}

// EmbeddingStats handles GET /embeddings/stats.
func (s *Server) EmbeddingStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HealthCheck handles GET /health. A degraded service still answers
// searches, so only an unhealthy one reports 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) searchRequest(params SearchParams) (request.Request, error) {
	m := s.opts.DefaultMode
	if params.Mode != nil {
		parsed, ok := mode.Parse(*params.Mode)
		if !ok {
			return request.Request{}, domain.Malformed("invalid search mode: %q", *params.Mode)
		}
		m = parsed
	}

	limit := s.opts.DefaultLimit
	if params.Limit != nil {
		limit = *params.Limit
	}

	rerank := s.opts.RerankDefault
	if params.Rerank != nil {
		rerank = *params.Rerank
	}

	var status article.Status
	if params.Status != nil && *params.Status != "" {
		status = article.Status(strings.ToUpper(*params.Status))
		if !status.IsValid() {
			return request.Request{}, domain.Malformed("invalid status: %q", *params.Status)
		}
	}
	filters, err := filter.ForArticles(deref(params.Sector), deref(params.Source), status)
	if err != nil {
		return request.Request{}, domain.Malformed("invalid filter: %v", err)
	}

	var weights *request.Weights
	if params.VectorWeight != nil || params.LexicalWeight != nil {
		weights = &request.Weights{Vector: 0.6, Lexical: 0.4}
		if params.VectorWeight != nil {
			weights.Vector = *params.VectorWeight
		}
		if params.LexicalWeight != nil {
			weights.Lexical = *params.LexicalWeight
		}
	}

	var minScore float64
	if params.MinScore != nil {
		minScore = *params.MinScore
	}

	return request.New(params.Q, m, filters, limit, weights, rerank, minScore)
}

func (s *Server) articleResults(cands []result.Candidate) []ArticleResult {
	items := make([]ArticleResult, len(cands))
	for i := range cands {
		items[i] = articleResult(&cands[i], s.opts.ExcerptChars)
	}
	return items
}

func articleResult(c *result.Candidate, excerpt int) ArticleResult {
	a := &c.Article
	out := ArticleResult{
		ID:      a.ID,
		Title:   a.SearchTitle(),
		Excerpt: domain.Truncate(a.SearchContent(), excerpt),
		URL:     a.URL,
		Source:  a.Source,
		Sector:  a.Sector,
		Status:  string(a.Status),
		Score:   c.Score,
		Rank:    c.Rank,
	}
	if a.TitleEN != out.Title {
		out.TitleEN = a.TitleEN
	}
	if !a.ArticleDate.IsZero() {
		d := a.ArticleDate.UTC()
		out.ArticleDate = &d
	}
	if len(c.Sources) > 0 {
		h := c.HybridScore
		out.HybridScore = &h
		out.Sources = make([]string, len(c.Sources))
		for j, src := range c.Sources {
			out.Sources[j] = string(src)
		}
	}
	if c.VectorRank > 0 {
		v := c.VectorRank
		out.VectorRank = &v
	}
	if c.LexicalRank > 0 {
		l := c.LexicalRank
		out.LexicalRank = &l
	}
	if c.RerankStrategy != "" {
		rs, st := c.RerankScore, c.RerankStrategy
		out.RerankScore = &rs
		out.RerankStrategy = &st
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Malformed input messages are written by this service and are returned as is.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrMalformedInput) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAllRetrieversFailed,
		domain.ErrEmbedding,
		domain.ErrRerankUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.Or(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}
