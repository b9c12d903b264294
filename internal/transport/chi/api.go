package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ErrorResponseCode is a stable machine-readable error code.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeBadRequest          ErrorResponseCode = "bad_request"
	ErrorResponseCodeUnauthorized        ErrorResponseCode = "unauthorized"
	ErrorResponseCodeValidationFailed    ErrorResponseCode = "validation_failed"
	ErrorResponseCodeArticleNotFound     ErrorResponseCode = "article_not_found"
	ErrorResponseCodeRateLimited         ErrorResponseCode = "rate_limited"
	ErrorResponseCodeEmbeddingFailed     ErrorResponseCode = "embedding_failed"
	ErrorResponseCodeRetrievalFailed     ErrorResponseCode = "retrieval_failed"
	ErrorResponseCodeServiceUnavailable  ErrorResponseCode = "service_unavailable"
	ErrorResponseCodeInternalError       ErrorResponseCode = "internal_error"
	ErrorResponseCodeVectorDimMismatch   ErrorResponseCode = "vector_dim_mismatch"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
}

// ArticleResult is one ranked article.
type ArticleResult struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	TitleEN        string     `json:"title_en,omitempty"`
	Excerpt        string     `json:"excerpt,omitempty"`
	URL            string     `json:"url,omitempty"`
	Source         string     `json:"source,omitempty"`
	Sector         string     `json:"sector,omitempty"`
	Status         string     `json:"status,omitempty"`
	ArticleDate    *time.Time `json:"article_date,omitempty"`
	Score          float64    `json:"score"`
	Rank           int        `json:"rank"`
	HybridScore    *float64   `json:"hybrid_score,omitempty"`
	Sources        []string   `json:"sources,omitempty"`
	VectorRank     *int       `json:"vector_rank,omitempty"`
	LexicalRank    *int       `json:"lexical_rank,omitempty"`
	RerankScore    *float64   `json:"rerank_score,omitempty"`
	RerankStrategy *string    `json:"rerank_strategy,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query    string          `json:"query"`
	Mode     string          `json:"mode"`
	Reranked bool            `json:"reranked"`
	Limit    int             `json:"limit"`
	Total    int             `json:"total"`
	Items    []ArticleResult `json:"items"`
}

// RelatedResponse is the body of GET /articles/{id}/related.
type RelatedResponse struct {
	ArticleID string          `json:"article_id"`
	Total     int             `json:"total"`
	Items     []ArticleResult `json:"items"`
}

// SearchParams are the query parameters of GET /search.
type SearchParams struct {
	Q             string   `form:"q" json:"q"`
	Mode          *string  `form:"mode,omitempty" json:"mode,omitempty"`
	Limit         *int     `form:"limit,omitempty" json:"limit,omitempty"`
	Rerank        *bool    `form:"rerank,omitempty" json:"rerank,omitempty"`
	Sector        *string  `form:"sector,omitempty" json:"sector,omitempty"`
	Source        *string  `form:"source,omitempty" json:"source,omitempty"`
	Status        *string  `form:"status,omitempty" json:"status,omitempty"`
	MinScore      *float64 `form:"min_score,omitempty" json:"min_score,omitempty"`
	VectorWeight  *float64 `form:"vector_weight,omitempty" json:"vector_weight,omitempty"`
	LexicalWeight *float64 `form:"lexical_weight,omitempty" json:"lexical_weight,omitempty"`
}

// RelatedParams are the query parameters of GET /articles/{id}/related.
type RelatedParams struct {
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}

// ServerInterface lists the HTTP operations.
type ServerInterface interface {
	// (GET /search)
	SearchArticles(w http.ResponseWriter, r *http.Request, params SearchParams)
	// (GET /articles/{id}/related)
	RelatedArticles(w http.ResponseWriter, r *http.Request, id string, params RelatedParams)
	// (GET /embeddings/stats)
	EmbeddingStats(w http.ResponseWriter, r *http.Request)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper binds request parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError reports a parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// RequiredParamError reports a missing required parameter.
type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("query argument %s is required, but not found", e.ParamName)
}

// SearchArticles binds SearchParams.
func (siw *ServerInterfaceWrapper) SearchArticles(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	query := r.URL.Query()

	if _, ok := query["q"]; !ok {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "q"})
		return
	}

	bindings := []struct {
		name     string
		required bool
		dest     any
	}{
		{"q", true, &params.Q},
		{"mode", false, &params.Mode},
		{"limit", false, &params.Limit},
		{"rerank", false, &params.Rerank},
		{"sector", false, &params.Sector},
		{"source", false, &params.Source},
		{"status", false, &params.Status},
		{"min_score", false, &params.MinScore},
		{"vector_weight", false, &params.VectorWeight},
		{"lexical_weight", false, &params.LexicalWeight},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, b.required, b.name, query, b.dest); err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: b.name, Err: err})
			return
		}
	}

	siw.Handler.SearchArticles(w, r, params)
}

// RelatedArticles binds the article id and RelatedParams.
func (siw *ServerInterfaceWrapper) RelatedArticles(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}

	var params RelatedParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}

	siw.Handler.RelatedArticles(w, r, id, params)
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler mounts si on a new router.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions mounts si on options.BaseRouter, creating one if nil.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/search", wrapper.SearchArticles)
		r.Get(options.BaseURL+"/articles/{id}/related", wrapper.RelatedArticles)
		r.Get(options.BaseURL+"/embeddings/stats", si.EmbeddingStats)
		r.Get(options.BaseURL+"/health", si.HealthCheck)
		r.Get(options.BaseURL+"/metrics", si.Metrics)
	})
	return r
}

// BadRequestHandler writes a JSON 400 for parameter binding failures.
func BadRequestHandler(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, err.Error())
}
