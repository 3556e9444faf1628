package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.SetEnabled(cfg.Tracing.Enabled)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"source", cfg.Document.Source,
		"context_unit", cfg.Search.ContextUnit,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var docStore loader.DocumentStore
	if cfg.Document.Source == config.SourcePostgres {
		var db *postgres.Client
		err := resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(context.Context) error {
			var err error
			db, err = postgres.New(cfg.Postgres)
			if postgres.IsConfigError(err) {
				return resilience.Permanent(err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		docStore = db
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	aggregator := analytics.NewAggregator()
	trackers := analytics.Tee{aggregator}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("creating kafka producer: %w", err)
		}
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("analytics publishing enabled", "topic", producer.Topic())
	}

	docLoader, err := loader.New(cfg.Document, docStore)
	if err != nil {
		return err
	}
	engine, err := indexer.NewEngine(docLoader, cfg.Search, m, trackers)
	if err != nil {
		return err
	}
	built, err := engine.Build(ctx)
	if err != nil {
		return err
	}
	stats := built.Index.Stats()
	checker.Register("index", health.ReadyCheck(
		func() bool { return built.Index != nil },
		fmt.Sprintf("%d tokens, %d distinct words", stats.Tokens, stats.DistinctWords),
	))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			store := cache.NewBreakerStore(redisClient, resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange: func(_ string, _, to resilience.State) {
					m.CacheBreakerState.Set(float64(to))
				},
			})
			queryCache = cache.New(store, cfg.Redis.CacheTTL, built.Fingerprint, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
				"namespace", built.Fingerprint,
			)
		}
	}

	exec := executor.New(built.Index, cfg.Search.MaxContextWords, m)
	h := handler.New(exec, handler.Options{
		Cache:               queryCache,
		Tracker:             trackers,
		DefaultContextWords: cfg.Search.DefaultContextWords,
		ContextUnit:         built.Index.ContextUnit(),
		Source:              built.Source,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recover,
		middleware.Logging,
		middleware.Metrics(m),
	}
	if origins := cfg.Server.CORSAllowOrigins; len(origins) > 0 {
		mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig(origins)))
	}
	if limit := cfg.Server.RateLimitPerMinute; limit > 0 {
		limiter := ratelimit.New(ctx, time.Minute)
		mws = append(mws, middleware.RateLimit(limiter, limit, time.Minute))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))
	chain := middleware.Chain(mux, mws...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}
