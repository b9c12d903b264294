package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/freethrow/tanalyst/internal/config"
	"github.com/freethrow/tanalyst/internal/db/connect"
	"github.com/freethrow/tanalyst/internal/domain/search/mode"
	logpkg "github.com/freethrow/tanalyst/internal/logger"
	"github.com/freethrow/tanalyst/internal/metrics"
	articlerepo "github.com/freethrow/tanalyst/internal/repository/article"
	searchrepo "github.com/freethrow/tanalyst/internal/repository/search"
	chiTransport "github.com/freethrow/tanalyst/internal/transport/chi"
	embeddinguc "github.com/freethrow/tanalyst/internal/usecase/embedding"
	"github.com/freethrow/tanalyst/internal/usecase/fusion"
	healthuc "github.com/freethrow/tanalyst/internal/usecase/health"
	searchuc "github.com/freethrow/tanalyst/internal/usecase/search"
	"github.com/freethrow/tanalyst/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tanalyst search API",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("vector_backend", cfg.Search.VectorBackend),
		zap.String("lexical_backend", cfg.Search.LexicalBackend),
	)

	ctx := context.Background()
	stores, err := connect.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	defer stores.Docs.Close()
	logger.Info("Connected to database")

	// Register collectors explicitly (no init())
	metrics.Register()

	searchRepo := searchrepo.New(stores.Docs, searchrepo.Config{
		IndexName:  cfg.Database.IndexName,
		KeyPrefix:  cfg.Database.KeyPrefix,
		Dimensions: cfg.Embedding.Dimensions,
		HNSWM:      cfg.Database.HNSWM,
		HNSWEF:     cfg.Database.HNSWEFConstruct,
		TextFields: cfg.Search.LexicalFields,
	})
	created, err := searchRepo.EnsureIndex(ctx)
	if err != nil {
		logger.Fatal("Failed to ensure article index", zap.Error(err))
	}
	if created {
		logger.Info("Created article index", zap.String("index", cfg.Database.IndexName))
	}
	if cfg.Search.LexicalBackend == config.BackendIndex && !searchRepo.SupportsTextSearch(ctx) {
		logger.Warn("Backend has no keyword search; lexical results will be empty",
			zap.String("db_driver", cfg.Database.Driver))
	}

	articles := articlerepo.New(stores.Docs, cfg.Database.KeyPrefix)
	provider := buildProvider(&cfg.Embedding, stores.KV, logger)
	reranker, rerankProbe := buildReranker(&cfg.Rerank, logger)

	searchSvc := searchuc.New(searchuc.Deps{
		Embedder: provider,
		Vector:   buildVectorRetriever(&cfg, searchRepo, articles),
		Lexical:  buildLexicalRetriever(&cfg, searchRepo, articles, logger),
		Reranker: reranker,
		Articles: articles,
	}, searchuc.Options{
		Weights:             fusion.Weights{Vector: cfg.Search.VectorWeight, Lexical: cfg.Search.LexicalWeight},
		RRFK:                cfg.Search.RRFK,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		Dimensions:          cfg.Embedding.Dimensions,
		EmbedTimeout:        config.Millis(cfg.Search.Timeouts.EmbedMs),
		VectorTimeout:       config.Millis(cfg.Search.Timeouts.VectorMs),
		LexicalTimeout:      config.Millis(cfg.Search.Timeouts.LexicalMs),
		RelatedLimit:        cfg.Search.Related.Limit,
		RelatedCacheSize:    cfg.Search.Related.CacheSize,
		RelatedTTL:          config.Seconds(cfg.Search.Related.CacheTTLs),
	}, logger)

	statsSvc := embeddinguc.NewStatsService(articles, provider.Model(), provider.Dimensions())

	healthSvc := healthuc.New(stores.Docs, healthuc.DefaultTimeout, logger,
		healthuc.Component{Name: "embedding", Checker: provider},
		healthuc.Component{Name: "reranker", Checker: rerankProbe},
	)

	defaultMode, ok := mode.Parse(cfg.Search.DefaultMode)
	if !ok {
		logger.Fatal("Unknown default search mode", zap.String("mode", cfg.Search.DefaultMode))
	}
	server := chiTransport.NewServer(searchSvc, statsSvc, healthSvc, chiTransport.Options{
		DefaultMode:   defaultMode,
		DefaultLimit:  cfg.Search.DefaultLimit,
		RerankDefault: cfg.Search.RerankDefault,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: chiTransport.BadRequestHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  config.Seconds(cfg.HTTP.ReadTimeoutSec),
		WriteTimeout: config.Seconds(cfg.HTTP.WriteTimeoutSec),
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.HTTP.ShutdownSec))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorResponseCodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.Query().Get("q")),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
