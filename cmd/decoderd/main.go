package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/syntaxmt/forest-decoder/internal/cache"
	"github.com/syntaxmt/forest-decoder/internal/decode"
	"github.com/syntaxmt/forest-decoder/internal/events"
	"github.com/syntaxmt/forest-decoder/internal/history"
	"github.com/syntaxmt/forest-decoder/internal/server"
	"github.com/syntaxmt/forest-decoder/pkg/config"
	"github.com/syntaxmt/forest-decoder/pkg/health"
	"github.com/syntaxmt/forest-decoder/pkg/kafka"
	"github.com/syntaxmt/forest-decoder/pkg/logger"
	"github.com/syntaxmt/forest-decoder/pkg/metrics"
	"github.com/syntaxmt/forest-decoder/pkg/middleware"
	"github.com/syntaxmt/forest-decoder/pkg/postgres"
	pkgredis "github.com/syntaxmt/forest-decoder/pkg/redis"
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
	slog.Info("starting decoder service",
		"port", cfg.Server.Port,
		"pop_limit", cfg.Decoder.PopLimit,
		"rule_limit", cfg.Decoder.RuleLimit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsShutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			if err := metricsShutdown(context.Background()); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	engine := decode.NewEngine(cfg.Decoder, m)

	var resultCache *cache.ResultCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	var collector *events.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DecodeEvents)
		defer producer.Close()
		collector = events.NewCollector(producer, 10000, m)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("event collector started", "topic", cfg.Kafka.Topics.DecodeEvents)
	} else {
		slog.Warn("no kafka brokers configured, decode events disabled")
	}

	var historyStore *history.Store
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, decode history disabled", "error", err)
	} else {
		defer pgClient.Close()
		historyStore = history.NewStore(pgClient)
		slog.Info("decode history enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	checker := health.NewChecker()
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		if collector == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(engine, resultCache, collector, historyStore, m, cfg.Server.DecodeTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/translate", h.Translate)
	mux.HandleFunc("GET /v1/history", h.History)
	mux.HandleFunc("GET /v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("decoder service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("decoder service stopped")
}
