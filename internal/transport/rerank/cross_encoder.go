package rerank

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// CrossEncoder scores query/text pairs through a /rerank endpoint.
// Both the text-embeddings-inference shape ([{index, score}]) and the
// Jina/Cohere shape ({results: [{index, relevance_score}]}) are accepted.
type CrossEncoder struct {
	client
	model string
}

// NewCrossEncoder creates the client. No request is made until Score or Probe.
func NewCrossEncoder(cfg Config) *CrossEncoder {
	return &CrossEncoder{client: newClient(cfg), model: cfg.Model}
}

// Name identifies the strategy in logs and metrics.
func (c *CrossEncoder) Name() string { return "cross_encoder" }

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	// Documents duplicates Texts for Jina/Cohere style servers.
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

// Score returns one relevance score per text, in input order.
func (c *CrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	data, err := c.post(ctx, "/rerank", rerankRequest{
		Query:     query,
		Texts:     texts,
		Documents: texts,
		Model:     c.model,
		TopN:      len(texts),
	})
	if err != nil {
		return nil, fmt.Errorf("cross-encoder: %w", err)
	}

	scores, err := parseRerank(data, len(texts))
	if err != nil {
		return nil, fmt.Errorf("cross-encoder: %w", err)
	}
	return scores, nil
}

// Probe sends a one-pair request to confirm the model is serving.
func (c *CrossEncoder) Probe(ctx context.Context) error {
	_, err := c.Score(ctx, "probe", []string{"probe"})
	return err
}

func parseRerank(data []byte, n int) ([]float64, error) {
	root := gjson.ParseBytes(data)
	items := root
	if !root.IsArray() {
		items = root.Get("results")
		if !items.IsArray() {
			items = root.Get("data")
		}
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("no result list: %w", ErrBadResponse)
	}

	scores := make([]float64, n)
	seen := make([]bool, n)
	count := 0
	var perr error
	items.ForEach(func(_, item gjson.Result) bool {
		idx := item.Get("index")
		score := item.Get("relevance_score")
		if !score.Exists() {
			score = item.Get("score")
		}
		if !idx.Exists() || score.Type != gjson.Number {
			perr = fmt.Errorf("result without index or score: %w", ErrBadResponse)
			return false
		}
		i := int(idx.Int())
		if i < 0 || i >= n || seen[i] {
			perr = fmt.Errorf("result index %d out of range or duplicated: %w", i, ErrBadResponse)
			return false
		}
		scores[i], seen[i] = score.Float(), true
		count++
		return true
	})
	if perr != nil {
		return nil, perr
	}
	if count != n {
		return nil, fmt.Errorf("got %d scores for %d texts: %w", count, n, ErrBadResponse)
	}
	return scores, nil
}
