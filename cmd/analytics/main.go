// Command analytics starts the standalone analytics aggregation service.
//
// It consumes the search and index events the searcher publishes to Kafka,
// aggregates them in memory and exposes them at GET /api/v1/analytics/stats.
// Several searcher replicas can publish to the same topic; this service gives
// the combined view.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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
	"sync/atomic"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/middleware"
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
	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting analytics service",
		"port", cfg.Analytics.Port,
		"topic", cfg.Kafka.Topics.AnalyticsEvents,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer, err := kafka.NewConsumer(cfg.Kafka, analytics.HandleMessage(aggregator))
	if err != nil {
		return fmt.Errorf("creating kafka consumer: %w", err)
	}

	var consuming atomic.Bool
	consuming.Store(true)
	go func() {
		defer consuming.Store(false)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer stopped", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("kafka", health.ReadyCheck(consuming.Load, "consumer active"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics/stats", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Recover, middleware.Logging),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}
