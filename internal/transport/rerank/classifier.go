package rerank

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultBatchSize is the number of pairs sent per /predict call.
const DefaultBatchSize = 32

// Classifier scores query/text pairs through a sequence-classification
// /predict endpoint, in fixed size batches.
type Classifier struct {
	client
	batchSize int
}

// NewClassifier creates the client.
func NewClassifier(cfg Config) *Classifier {
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	return &Classifier{client: newClient(cfg), batchSize: bs}
}

// Name identifies the strategy in logs and metrics.
func (c *Classifier) Name() string { return "classifier" }

type predictRequest struct {
	Inputs [][2]string `json:"inputs"`
}

// Score returns one logit per text, in input order. A failed batch fails the call.
func (c *Classifier) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		pairs := make([][2]string, 0, end-start)
		for _, t := range texts[start:end] {
			pairs = append(pairs, [2]string{query, t})
		}

		data, err := c.post(ctx, "/predict", predictRequest{Inputs: pairs})
		if err != nil {
			return nil, fmt.Errorf("classifier batch %d: %w", start/c.batchSize, err)
		}
		batch, err := parsePredict(data, len(pairs))
		if err != nil {
			return nil, fmt.Errorf("classifier batch %d: %w", start/c.batchSize, err)
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

// parsePredict accepts a bare list or {scores|predictions: [...]}. Each
// element is a number, an object with "score", or a label list whose first
// entry carries the score.
func parsePredict(data []byte, n int) ([]float64, error) {
	root := gjson.ParseBytes(data)
	items := root
	if !root.IsArray() {
		items = root.Get("scores")
		if !items.IsArray() {
			items = root.Get("predictions")
		}
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("no prediction list: %w", ErrBadResponse)
	}

	list := items.Array()
	if len(list) != n {
		return nil, fmt.Errorf("got %d predictions for %d pairs: %w", len(list), n, ErrBadResponse)
	}

	scores := make([]float64, n)
	for i, item := range list {
		v, ok := predictionScore(item)
		if !ok {
			return nil, fmt.Errorf("prediction %d has no score: %w", i, ErrBadResponse)
		}
		scores[i] = v
	}
	return scores, nil
}

func predictionScore(item gjson.Result) (float64, bool) {
	switch {
	case item.Type == gjson.Number:
		return item.Float(), true
	case item.IsArray():
		first := item.Get("0")
		if !first.Exists() {
			return 0, false
		}
		return predictionScore(first)
	case item.IsObject():
		s := item.Get("score")
		if s.Type != gjson.Number {
			return 0, false
		}
		return s.Float(), true
	}
	return 0, false
}
