package request

import (
	"fmt"
	"math"
	"strings"

	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/domain/search/filter"
	"github.com/freethrow/tanalyst/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 18
	MaxLimit       = 100
)

// Weights are the fusion weights of the vector and lexical rankings.
type Weights struct {
	Vector  float64
	Lexical float64
}

// Validate rejects negative, non-finite or all-zero weights.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Vector, w.Lexical} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Malformed("weights must be finite and non-negative")
		}
	}
	if w.Vector == 0 && w.Lexical == 0 {
		return domain.Malformed("at least one weight must be positive")
	}
	return nil
}

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	filters    filter.Expression
	limit      int
	weights    *Weights
	rerank     bool
	minScore   float64
}

// New validates and normalizes search parameters.
// Mode defaults to hybrid. Limit must be positive and is clamped to MaxLimit.
// A nil weights pointer keeps the service defaults. minScore is a percentage.
func New(
	query string,
	m mode.Mode,
	filters filter.Expression,
	limit int,
	weights *Weights,
	rerank bool,
	minScore float64,
) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.Malformed("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, domain.Malformed("query too long (max %d chars)", MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, domain.Malformed("invalid search mode: %q", m)
	}
	if limit <= 0 {
		return Request{}, domain.Malformed("limit must be positive, got %d", limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if weights != nil {
		if err := weights.Validate(); err != nil {
			return Request{}, fmt.Errorf("weights: %w", err)
		}
	}
	if minScore < 0 || minScore > 100 {
		return Request{}, domain.Malformed("min_score must be between 0 and 100")
	}

	return Request{
		query:      query,
		searchMode: m,
		filters:    filters,
		limit:      limit,
		weights:    weights,
		rerank:     rerank,
		minScore:   minScore,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Filters returns the pre-filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Limit returns the maximum results to return.
func (r *Request) Limit() int { return r.limit }

// Weights returns caller weights, or nil for service defaults.
func (r *Request) Weights() *Weights { return r.weights }

// Rerank reports whether the caller asked for reranking.
func (r *Request) Rerank() bool { return r.rerank }

// MinScore returns the minimum percentage score a result must reach.
func (r *Request) MinScore() float64 { return r.minScore }
