package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/config"
	dbRedis "github.com/retreivo/itemmatch/internal/db/redis"
	"github.com/retreivo/itemmatch/internal/domain"
	logpkg "github.com/retreivo/itemmatch/internal/logger"
	"github.com/retreivo/itemmatch/internal/metrics"
	"github.com/retreivo/itemmatch/internal/repository/desccache"
	itemrepo "github.com/retreivo/itemmatch/internal/repository/item"
	chiTransport "github.com/retreivo/itemmatch/internal/transport/chi"
	"github.com/retreivo/itemmatch/internal/transport/extractor"
	healthuc "github.com/retreivo/itemmatch/internal/usecase/health"
	matchinguc "github.com/retreivo/itemmatch/internal/usecase/matching"
	"github.com/retreivo/itemmatch/internal/version"
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

	policy := cfg.Policy()
	logger.Info("Starting itemmatch server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("extractor_url", cfg.Extractor.BaseURL),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("fallback_enabled", policy.FallbackEnabled),
	)

	// Register matching metrics explicitly (no init())
	metrics.RegisterMatchingMetrics()

	// Optional extraction cache
	var cache *dbRedis.Store
	if cfg.Cache.Enabled {
		cache = connectCache(&cfg, logger)
		if cache != nil {
			defer cache.Close()
		}
	}

	// Extractor chain: HTTP client (circuit breaker) -> cache
	var client *extractor.Client
	var ext domain.Extractor = domain.DisabledExtractor{}
	if cfg.Extractor.BaseURL != "" {
		client = extractor.NewClient(&extractor.Config{
			BaseURL:          cfg.Extractor.BaseURL,
			Timeout:          cfg.ExtractorTimeout(),
			FailureThreshold: cfg.Extractor.FailureThreshold,
			OpenTimeout:      time.Duration(cfg.Extractor.OpenTimeoutSec) * time.Second,
			HalfOpenRequests: cfg.Extractor.HalfOpenRequests,
			Logger:           logger,
		})
		ext = client
		if cache != nil {
			ext = desccache.New(client, cache, cfg.CacheTTL(), metrics.DescriptorCacheTotal, logger)
		}
	} else {
		logger.Warn("No extractor configured, image matching disabled")
	}

	store := itemrepo.New()
	matchingSvc := matchinguc.New(store, ext, policy, logger)

	// Pass nil interfaces (not typed nil pointers) for absent components.
	var extChecker healthuc.ExtractorChecker
	if client != nil {
		extChecker = client
	}
	var cachePinger healthuc.CachePinger
	if cache != nil {
		cachePinger = cache
	}
	healthSvc := healthuc.New(store, extChecker, cachePinger)

	server := chiTransport.NewServer(matchingSvc, healthSvc, logger).
		WithMaxBodyBytes(int64(cfg.HTTP.MaxBodyMB) << 20).
		WithRateLimit(cfg.HTTP.RateLimitPerMin, time.Minute)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// connectCache opens the Redis extraction cache. The cache is optional: when it cannot be
// reached the service runs without it.
func connectCache(cfg *config.Config, logger *zap.Logger) *dbRedis.Store {
	cache, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Cache.Addrs,
		Password: cfg.Cache.Password,
	})
	if err != nil {
		logger.Warn("Extraction cache disabled", zap.Error(err))
		return nil
	}

	timeout := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
	if err := cache.WaitForReady(context.Background(), timeout); err != nil {
		logger.Warn("Extraction cache not ready, continuing without it", zap.Error(err))
		cache.Close()
		return nil
	}

	logger.Info("Connected to extraction cache", zap.Strings("addrs", cfg.Cache.Addrs))
	return cache
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"ok":      false,
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			// Request bodies carry base64 images; only their size is logged.
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
