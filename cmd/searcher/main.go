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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/querylog"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/crawl-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	follow := flag.Bool("follow", false, "reload when the indexer announces a build")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_dir", cfg.Indexer.IndexDir())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	exec := executor.New(cfg.Search, m)
	defer exec.Close()
	if err := exec.Load(cfg.Indexer.IndexDir()); err != nil {
		// Keep serving 503s until a build is published and reloaded.
		slog.Warn("no index loaded yet", "error", err)
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m, cache.WithGeneration(exec.Generation))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if exec.Loaded() {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, true))
	}

	aggregator := querylog.NewAggregator()
	var eventPublisher querylog.BatchPublisher
	if cfg.Search.PublishQueryLog {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		eventPublisher = producer
	}
	queryLog := querylog.NewCollector(eventPublisher, aggregator, 100, 5*time.Second)
	queryLog.Start(ctx)
	defer queryLog.Close()

	h := handler.New(exec, tokenizer.New(cfg.Analysis), cfg.Search,
		handler.WithCache(queryCache),
		handler.WithMetrics(m),
		handler.WithQueryLog(queryLog),
		handler.WithReload(exec, cfg.Indexer.IndexDir()),
	)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", querylog.StatsHandler(aggregator))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if *follow {
		var invalidator reload.Invalidator
		if queryCache != nil {
			invalidator = queryCache
		}
		reloader := reload.New(exec, invalidator, cfg.Indexer.IndexDir())
		// Every replica must see every announcement, so each gets its own group.
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, reloader.Handle,
			kafka.WithGroup("searcher-"+uuid.NewString()))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("index event consumer stopped", "error", err)
			}
		}()
		slog.Info("following index builds", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
	}
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.CORS(cfg.Server.CORSOrigins),
			middleware.RateLimit(limiter),
			middleware.Timeout(cfg.Search.QueryTimeout),
		),
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
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
