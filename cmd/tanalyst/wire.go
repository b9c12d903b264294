package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/config"
	"github.com/freethrow/tanalyst/internal/db"
	"github.com/freethrow/tanalyst/internal/domain"
	"github.com/freethrow/tanalyst/internal/lazy"
	"github.com/freethrow/tanalyst/internal/metrics"
	articlerepo "github.com/freethrow/tanalyst/internal/repository/article"
	"github.com/freethrow/tanalyst/internal/repository/embcache"
	searchrepo "github.com/freethrow/tanalyst/internal/repository/search"
	openaiEmb "github.com/freethrow/tanalyst/internal/transport/openai"
	rerankTransport "github.com/freethrow/tanalyst/internal/transport/rerank"
	embeddinguc "github.com/freethrow/tanalyst/internal/usecase/embedding"
	healthuc "github.com/freethrow/tanalyst/internal/usecase/health"
	"github.com/freethrow/tanalyst/internal/usecase/rerank"
	"github.com/freethrow/tanalyst/internal/usecase/retrieval"
	searchuc "github.com/freethrow/tanalyst/internal/usecase/search"
)

const embeddingCachePrefix = "emb_cache:"

// buildProvider assembles the encoder chain: OpenAI -> Cached, wrapped by the
// provider's instrumented instruction embedders. kv may be nil.
func buildProvider(cfg *config.EmbeddingConfig, kv db.KVStore, logger *zap.Logger) *embeddinguc.Provider {
	factory := func(context.Context) (domain.Embedder, error) {
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Logger:  logger,
		})
		return embcache.New(base, kv, embcache.Options{
			KeyPrefix:  embeddingCachePrefix,
			Model:      cfg.Model,
			TTL:        config.Seconds(cfg.CacheTTLSec),
			MemorySize: cfg.LRUSize,
		}, metrics.EmbeddingCacheTotal, logger), nil
	}

	return embeddinguc.NewProvider(factory, embeddinguc.Options{
		Model:               cfg.Model,
		Dimensions:          cfg.Dimensions,
		QueryInstruction:    cfg.QueryInstruction,
		DocumentInstruction: cfg.DocumentInstruction,
		QueryMaxChars:       cfg.QueryMaxChars,
		DocumentMaxChars:    cfg.DocumentMaxChars,
		LoadTimeout:         config.Seconds(cfg.LoadTimeoutSec),
		LoadCooldown:        config.Seconds(cfg.LoadCooldownSec),
	}, logger)
}

// buildReranker chains cross-encoder, classifier and heuristic, skipping
// endpoints that are not configured. The returned checker probes the
// cross-encoder and is nil without one.
func buildReranker(cfg *config.RerankConfig, logger *zap.Logger) (*rerank.Service, healthuc.Checker) {
	var (
		strategies []rerank.Strategy
		probe      healthuc.Checker
	)

	if cfg.CrossEncoderURL != "" {
		ce := rerankTransport.NewCrossEncoder(rerankTransport.Config{
			BaseURL: cfg.CrossEncoderURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		loader := lazy.New[rerank.Strategy](ce.Name(), rerank.ProbedLoader(ce),
			lazy.WithTimeout(config.Millis(cfg.TimeoutMs)),
			lazy.WithCooldown(config.Seconds(cfg.LoadCooldownSec)),
		)
		strategies = append(strategies, rerank.NewLazyStrategy(ce.Name(), loader))
		probe = healthuc.CheckFunc(ce.Probe)
	}
	if cfg.ClassifierURL != "" {
		strategies = append(strategies, rerankTransport.NewClassifier(rerankTransport.Config{
			BaseURL:   cfg.ClassifierURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			BatchSize: cfg.BatchSize,
		}))
	}
	strategies = append(strategies, rerank.Heuristic{})

	names := make([]string, len(strategies))
	for i, st := range strategies {
		names[i] = st.Name()
	}
	logger.Info("Reranker configured", zap.Strings("strategies", names))

	return rerank.NewService(strategies, rerank.Options{
		Excerpt: cfg.ExcerptChars,
		Timeout: config.Millis(cfg.TimeoutMs),
	}, logger), probe
}

func buildVectorRetriever(
	cfg *config.Config, index *searchrepo.Repo, articles *articlerepo.Repo,
) searchuc.VectorRetriever {
	if cfg.Search.VectorBackend == config.BackendBruteForce {
		return retrieval.NewBruteForce(articles, cfg.Embedding.Dimensions)
	}
	return retrieval.NewIndexVector(index)
}

func buildLexicalRetriever(
	cfg *config.Config, index *searchrepo.Repo, articles *articlerepo.Repo, logger *zap.Logger,
) searchuc.LexicalRetriever {
	opts := retrieval.FuzzyOptions{
		MaxEdits:     cfg.Search.FuzzyMaxEdits,
		PrefixLength: cfg.Search.FuzzyPrefixLength,
	}
	if cfg.Search.LexicalBackend == config.BackendScan {
		return retrieval.NewFuzzyScan(articles, opts, cfg.Search.LexicalFields, retrieval.DefaultTitleBoost)
	}
	return retrieval.NewIndexLexical(index, opts, logger)
}
