// Command backfill embeds articles that have no usable embedding for the
// configured encoder.
//
// Usage:
//
//	backfill -limit 500 -dry-run
//
// Configuration is read the same way as the API server (ENV selects
// config/<env>.yaml).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/config"
	"github.com/freethrow/tanalyst/internal/db/connect"
	"github.com/freethrow/tanalyst/internal/domain"
	logpkg "github.com/freethrow/tanalyst/internal/logger"
	"github.com/freethrow/tanalyst/internal/metrics"
	articlerepo "github.com/freethrow/tanalyst/internal/repository/article"
	"github.com/freethrow/tanalyst/internal/retry"
	openaiEmb "github.com/freethrow/tanalyst/internal/transport/openai"
	"github.com/freethrow/tanalyst/internal/usecase/backfill"
	embeddinguc "github.com/freethrow/tanalyst/internal/usecase/embedding"
	"github.com/freethrow/tanalyst/internal/version"
)

type flags struct {
	limit       int
	batchSize   int
	dryRun      bool
	metricsAddr string
	version     bool
}

func parseFlags() flags {
	f := flags{}
	flag.IntVar(&f.limit, "limit", 0, "max articles to process (0=all)")
	flag.IntVar(&f.batchSize, "batch-size", 0, "articles per embedding call (0=config)")
	flag.BoolVar(&f.dryRun, "dry-run", false, "list pending articles without embedding them")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flag.BoolVar(&f.version, "version", false, "print version and exit")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if f.version {
		fmt.Println(version.String())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, f); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, "backfill:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting embedding backfill",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("limit", f.limit),
		zap.Bool("dry_run", f.dryRun),
	)

	metrics.Register()
	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr, logger)
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	stores, err := connect.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer stores.Docs.Close()

	emb := &cfg.Embedding
	// Document texts are unique per article, so the embedding cache is skipped.
	provider := embeddinguc.NewProvider(func(context.Context) (domain.Embedder, error) {
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  emb.APIKey,
			BaseURL: emb.BaseURL,
			Model:   emb.Model,
			Logger:  logger,
		}), nil
	}, embeddinguc.Options{
		Model:               emb.Model,
		Dimensions:          emb.Dimensions,
		QueryInstruction:    emb.QueryInstruction,
		DocumentInstruction: emb.DocumentInstruction,
		QueryMaxChars:       emb.QueryMaxChars,
		DocumentMaxChars:    emb.DocumentMaxChars,
		LoadTimeout:         config.Seconds(emb.LoadTimeoutSec),
	}, logger)

	batchSize := emb.Backfill.BatchSize
	if f.batchSize > 0 {
		batchSize = f.batchSize
	}

	svc := backfill.New(articlerepo.New(stores.Docs, cfg.Database.KeyPrefix), provider, backfill.Options{
		BatchSize: batchSize,
		Limit:     f.limit,
		DryRun:    f.dryRun,
		Policy: retry.Policy{
			MaxAttempts: emb.Backfill.MaxAttempts,
			BaseDelay:   config.Seconds(emb.Backfill.BaseDelaySec),
			MaxDelay:    config.Seconds(emb.Backfill.MaxDelaySec),
			Multiplier:  2,
			Retryable:   embeddinguc.IsRateLimited,
		},
	}, logger)

	report, err := svc.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report.Summary); encErr != nil {
		logger.Warn("Failed to print summary", zap.Error(encErr))
	}

	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if report.Summary.Failed > 0 {
		return errors.New("some articles failed to embed")
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return srv
}
