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

	"github.com/casetrack/casedex/internal/config"
	dbRedis "github.com/casetrack/casedex/internal/db/redis"
	logpkg "github.com/casetrack/casedex/internal/logger"
	"github.com/casetrack/casedex/internal/metrics"
	"github.com/casetrack/casedex/internal/queue"
	casesrepo "github.com/casetrack/casedex/internal/repository/cases"
	chiTransport "github.com/casetrack/casedex/internal/transport/chi"
	casesuc "github.com/casetrack/casedex/internal/usecase/cases"
	healthuc "github.com/casetrack/casedex/internal/usecase/health"
	"github.com/casetrack/casedex/internal/version"
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

	logger.Info("Starting casedex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("stream", cfg.Queue.Stream),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register event metrics explicitly (no init())
	metrics.RegisterEventMetrics()

	// Composition root
	caseRepo := casesrepo.New(store, cfg.Search.KeyPrefix)
	if err := caseRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure case index", zap.Error(err))
	}

	caseSvc := casesuc.New(caseRepo).WithResultsLimit(cfg.Search.ResultsLimit)
	healthSvc := healthuc.New(store)

	dispatcher := queue.NewDispatcher(caseSvc, logger)
	consumer := queue.New(store, dispatcher, queue.Config{
		Stream:            cfg.Queue.Stream,
		Group:             cfg.Queue.Group,
		Consumer:          cfg.Queue.Consumer,
		DeadLetterStream:  cfg.Queue.DeadLetterStream,
		MaxRedeliveries:   cfg.Queue.MaxRedeliveries,
		RedeliveryDelay:   time.Duration(cfg.Queue.RedeliveryDelayMS) * time.Millisecond,
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
		Lanes:             cfg.Queue.Lanes,
		BatchSize:         cfg.Queue.BatchSize,
		BlockTimeout:      time.Duration(cfg.Queue.BlockTimeoutMS) * time.Millisecond,
		ClaimMinIdle:      time.Duration(cfg.Queue.ClaimMinIdleMS) * time.Millisecond,
		ClaimInterval:     time.Duration(cfg.Queue.ClaimIntervalMS) * time.Millisecond,
	}, logger)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(consumerCtx); err != nil {
			logger.Error("Event consumer stopped", zap.Error(err))
		}
	}()

	server := chiTransport.NewServer(caseSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

	// HTTP first, then the consumer: in-flight events finish before exit.
	stopConsumer()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Consumer did not drain before shutdown deadline")
	}

	logger.Info("Server stopped gracefully")
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
