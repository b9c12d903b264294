package db

import "github.com/freethrow/tanalyst/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for fuzzy full-text search.
type TextQuery struct {
	IndexName string
	// Fields restricts matching to these text fields. Empty means all.
	Fields  []string
	Query   string
	Filters filter.Expression
	// MaxEdits is the tolerated Levenshtein distance per term (0-2).
	MaxEdits int
	// PrefixLength is the minimum term length for fuzzy expansion; shorter
	// terms must match exactly.
	PrefixLength int
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Score is cosine similarity in
// [0, 1] for KNN and backend-native relevance for text search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
