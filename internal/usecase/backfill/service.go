// Package backfill computes missing article embeddings in batches.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/domain/article"
	dombatch "github.com/freethrow/tanalyst/internal/domain/batch"
	"github.com/freethrow/tanalyst/internal/metrics"
	"github.com/freethrow/tanalyst/internal/retry"
	"github.com/freethrow/tanalyst/internal/usecase/embedding"
)

// DefaultBatchSize is the number of articles embedded per provider call.
const DefaultBatchSize = 32

var errNoText = errors.New("article has no title or content")

// Options configures a run.
type Options struct {
	BatchSize int
	// Limit caps the number of articles considered. Zero means all.
	Limit int
	// DryRun lists pending articles without embedding them.
	DryRun bool
	Policy retry.Policy
}

// Report describes a finished run.
type Report struct {
	// Pending is the number of articles that needed an embedding.
	Pending int
	DryRun  bool
	Results []dombatch.Result
	Summary dombatch.Summary
}

// Service embeds articles that have no eligible embedding.
type Service struct {
	store  ArticleStore
	embed  DocumentEmbedder
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a backfill service. A policy without Retryable retries only
// rate limits.
func New(store ArticleStore, embed DocumentEmbedder, opts Options, logger *zap.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Policy.Retryable == nil {
		opts.Policy.Retryable = embedding.IsRateLimited
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embed: embed, opts: opts, logger: logger, now: time.Now}
}

// Run processes every pending article. Per-batch failures are recorded in
// the report and processing continues, except when the provider stays rate
// limited after all retries: the remaining articles are then marked failed.
// The returned error is non-nil only when listing fails or ctx ends.
func (s *Service) Run(ctx context.Context) (Report, error) {
	pending, err := s.store.ListMissingEmbedding(ctx, s.embed.Dimensions(), s.opts.Limit)
	if err != nil {
		return Report{}, fmt.Errorf("list missing embeddings: %w", err)
	}

	report := Report{Pending: len(pending), DryRun: s.opts.DryRun}
	results := make([]dombatch.Result, 0, len(pending))

	todo := make([]article.Article, 0, len(pending))
	for i := range pending {
		if !pending[i].HasSearchText() {
			results = append(results, dombatch.NewSkipped(pending[i].ID, errNoText))
			continue
		}
		todo = append(todo, pending[i])
	}

	s.logger.Info("Embedding backfill started",
		zap.Int("pending", len(pending)),
		zap.Int("embeddable", len(todo)),
		zap.Int("batch_size", s.opts.BatchSize),
		zap.Bool("dry_run", s.opts.DryRun),
		zap.String("model", s.embed.Model()),
	)

	if s.opts.DryRun {
		for i := range todo {
			results = append(results, dombatch.NewSkipped(todo[i].ID, nil))
		}
		return s.finish(report, results), nil
	}

	for start := 0; start < len(todo); start += s.opts.BatchSize {
		chunk := todo[start:min(start+s.opts.BatchSize, len(todo))]

		chunkResults, err := s.process(ctx, chunk)
		results = append(results, chunkResults...)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.finish(report, results), ctxErr
		}
		if err != nil && embedding.IsRateLimited(err) {
			for _, a := range todo[start+len(chunk):] {
				results = append(results, dombatch.NewError(a.ID, err))
			}
			s.logger.Error("Provider still rate limited, aborting backfill",
				zap.Int("remaining", len(todo)-start-len(chunk)),
				zap.Error(err),
			)
			break
		}

		s.logger.Info("Embedding backfill progress",
			zap.Int("done", start+len(chunk)),
			zap.Int("total", len(todo)),
		)
	}

	return s.finish(report, results), nil
}

// process embeds and stores one chunk. The error is the batch failure
// already recorded in the results.
func (s *Service) process(ctx context.Context, chunk []article.Article) ([]dombatch.Result, error) {
	texts := make([]string, len(chunk))
	for i := range chunk {
		texts[i] = chunk[i].EmbeddingText()
	}

	vecs, err := retry.Do(ctx, s.opts.Policy, func(ctx context.Context) ([][]float32, error) {
		return s.embed.EmbedDocuments(ctx, texts)
	})
	if err == nil && len(vecs) != len(chunk) {
		err = fmt.Errorf("got %d embeddings for %d articles", len(vecs), len(chunk))
	}
	if err != nil {
		s.logger.Warn("Embedding batch failed", zap.Int("size", len(chunk)), zap.Error(err))
		return failAll(chunk, fmt.Errorf("embed: %w", err)), err
	}

	now := s.now().UTC()
	embeddings := make(map[string]*article.Embedding, len(chunk))
	for i := range chunk {
		embeddings[chunk[i].ID] = &article.Embedding{
			Vector:    vecs[i],
			Model:     s.embed.Model(),
			CreatedAt: now,
		}
	}
	if err := s.store.SaveEmbeddings(ctx, embeddings); err != nil {
		s.logger.Warn("Saving embeddings failed", zap.Int("size", len(chunk)), zap.Error(err))
		return failAll(chunk, fmt.Errorf("save: %w", err)), err
	}

	out := make([]dombatch.Result, len(chunk))
	for i := range chunk {
		out[i] = dombatch.NewOK(chunk[i].ID)
	}
	return out, nil
}

func (s *Service) finish(report Report, results []dombatch.Result) Report {
	report.Results = results
	report.Summary = dombatch.Summarize(results)
	if !report.DryRun {
		metrics.BackfillDocumentsTotal.WithLabelValues("embedded").Add(float64(report.Summary.OK))
		metrics.BackfillDocumentsTotal.WithLabelValues("failed").Add(float64(report.Summary.Failed))
		metrics.BackfillDocumentsTotal.WithLabelValues("skipped").Add(float64(report.Summary.Skipped))
	}
	s.logger.Info("Embedding backfill finished",
		zap.Int("embedded", report.Summary.OK),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("skipped", report.Summary.Skipped),
	)
	return report
}

func failAll(chunk []article.Article, err error) []dombatch.Result {
	out := make([]dombatch.Result, len(chunk))
	for i := range chunk {
		out[i] = dombatch.NewError(chunk[i].ID, err)
	}
	return out
}
