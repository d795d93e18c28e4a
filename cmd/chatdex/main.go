package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chatdex/internal/cache"
	"github.com/kailas-cloud/chatdex/internal/config"
	"github.com/kailas-cloud/chatdex/internal/corpus"
	"github.com/kailas-cloud/chatdex/internal/domain"
	logpkg "github.com/kailas-cloud/chatdex/internal/logger"
	"github.com/kailas-cloud/chatdex/internal/metrics"
	"github.com/kailas-cloud/chatdex/internal/repository/embcache"
	"github.com/kailas-cloud/chatdex/internal/retriever"
	chiTransport "github.com/kailas-cloud/chatdex/internal/transport/chi"
	openaiClient "github.com/kailas-cloud/chatdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/chatdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/chatdex/internal/usecase/health"
	"github.com/kailas-cloud/chatdex/internal/usecase/refine"
	"github.com/kailas-cloud/chatdex/internal/usecase/resolve"
	"github.com/kailas-cloud/chatdex/internal/usecase/stream"
	"github.com/kailas-cloud/chatdex/internal/version"
)

func main() {
	// Load configuration based on ENV
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

	logger.Info("Starting chatdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus_path", cfg.Corpus.Path),
		zap.String("retriever_variant", cfg.Retriever.Variant),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterCoreMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Load the corpus up front: the retrieval index is immutable for
	// the lifetime of the process.
	pairs, err := corpus.LoadCSV(cfg.Corpus.Path)
	if err != nil {
		logger.Fatal("Failed to load corpus", zap.Error(err))
	}
	store, err := corpus.New(pairs)
	if err != nil {
		logger.Fatal("Failed to build corpus store", zap.Error(err))
	}
	logger.Info("Corpus loaded", zap.Int("records", store.Len()))

	// Optional embedding cache
	var kv *cache.Store
	if len(cfg.Cache.Addrs) > 0 {
		kv, err = cache.NewStore(cache.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer kv.Close()

		readyCtx := context.Background()
		if err := kv.WaitForReady(readyCtx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	// Build the retriever
	ctx := context.Background()
	var (
		rtr          resolve.Retriever
		healthEmbSvc healthuc.EmbeddingChecker
	)
	switch cfg.Retriever.Variant {
	case retriever.VariantSemantic:
		docEmbedder := buildEmbedder(cfg, cfg.Embedding.DocumentInstruction, kv, logger)
		queryEmbedder := buildEmbedder(cfg, cfg.Embedding.QueryInstruction, kv, logger)
		healthEmbSvc = newEmbeddingHealthChecker(queryEmbedder)

		sem := retriever.NewSemantic(docEmbedder, logger).WithQueryEmbedder(queryEmbedder)
		if err := sem.Build(ctx, store.Records()); err != nil {
			logger.Fatal("Failed to build semantic index", zap.Error(err))
		}
		rtr = sem
	default:
		lex := retriever.NewLexical(retriever.LexicalConfig{
			MaxFeatures: cfg.Retriever.MaxFeatures,
			NgramMin:    cfg.Retriever.NgramMin,
			NgramMax:    cfg.Retriever.NgramMax,
		})
		if err := lex.Build(ctx, store.Records()); err != nil {
			logger.Fatal("Failed to build lexical index", zap.Error(err))
		}
		rtr = lex
	}
	logger.Info("Retrieval index built", zap.String("variant", cfg.Retriever.Variant))

	// Optional answer refiner.
	// Pass nil interface (not typed nil pointer!) when refine is disabled.
	var (
		streamRefiner    stream.Refiner
		transportRefiner chiTransport.Refiner
	)
	if cfg.Refine.Enabled {
		chat := openaiClient.NewChatClient(&openaiClient.ChatConfig{
			APIKey:  cfg.Refine.APIKey,
			BaseURL: cfg.Refine.BaseURL,
			Model:   cfg.Refine.Model,
			Logger:  logger,
		})
		refiner := refine.New(chat, logger)
		streamRefiner = refiner
		transportRefiner = refiner
		logger.Info("Answer refiner enabled", zap.String("model", cfg.Refine.Model))
	}

	// Use case services
	resolveSvc := resolve.New(rtr, store, logger)
	streamSvc := stream.NewManager(resolveSvc, streamRefiner, stream.Config{
		ChunkMode:    cfg.Stream.ChunkMode,
		PaceInterval: time.Duration(cfg.Stream.PaceIntervalMS) * time.Millisecond,
	}, logger)

	var cachePinger healthuc.CachePinger
	if kv != nil {
		cachePinger = kv
	}
	healthSvc := healthuc.New(healthEmbSvc, cachePinger, cfg.Retriever.Variant)

	// Create chi server
	server := chiTransport.NewServer(
		resolveSvc, streamSvc, transportRefiner, healthSvc, cfg.Retriever.TopK, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg config.Config,
	instruction string,
	kv *cache.Store,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiClient.NewEmbedder(&openaiClient.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if kv != nil {
		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		embedder = embcache.New(base, kv, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented (per-call logging + batch chunking)
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
