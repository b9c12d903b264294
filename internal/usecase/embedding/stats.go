package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/freethrow/tanalyst/internal/domain/article"
)

// corpusLister is the consumer interface for embedding statistics (ISP).
type corpusLister interface {
	ListAll(ctx context.Context) ([]article.Article, error)
}

// Stats summarizes embedding coverage of the corpus.
type Stats struct {
	Total            int            `json:"total_articles"`
	WithEmbedding    int            `json:"with_embeddings"`
	WithoutEmbedding int            `json:"without_embeddings"`
	// Ineligible counts stored vectors whose length differs from the encoder's.
	Ineligible int            `json:"ineligible"`
	Percentage float64        `json:"embedding_percentage"`
	ByModel    map[string]int `json:"models"`
	Model      string         `json:"current_model"`
	Dimensions int            `json:"dimensions"`
}

// StatsService reports how much of the corpus is searchable by vector.
type StatsService struct {
	corpus corpusLister
	model  string
	dims   int
}

// NewStatsService creates the service for the active encoder.
func NewStatsService(corpus corpusLister, model string, dims int) *StatsService {
	return &StatsService{corpus: corpus, model: model, dims: dims}
}

// Stats scans the corpus once.
func (s *StatsService) Stats(ctx context.Context) (Stats, error) {
	all, err := s.corpus.ListAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list articles: %w", err)
	}

	st := Stats{
		Total:      len(all),
		ByModel:    make(map[string]int),
		Model:      s.model,
		Dimensions: s.dims,
	}
	for i := range all {
		e := all[i].Embedding
		if e == nil || len(e.Vector) == 0 {
			continue
		}
		st.WithEmbedding++
		model := e.Model
		if model == "" {
			model = "unknown"
		}
		st.ByModel[model]++
		if !e.Eligible(s.dims) {
			st.Ineligible++
		}
	}
	st.WithoutEmbedding = st.Total - st.WithEmbedding
	if st.Total > 0 {
		st.Percentage = math.Round(float64(st.WithEmbedding)/float64(st.Total)*1000) / 10
	}
	return st, nil
}
