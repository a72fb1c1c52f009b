// Command searcher serves keyword and proximity queries over the shard
// indexes written by the indexer.
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/spans"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "num_shards", cfg.Indexer.NumShards)

	tok := tokenizer.New(cfg.Proximity.Synonyms, cfg.Proximity.SynonymScore)
	router, err := shard.NewRouter(cfg.Indexer, tok)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	m := metrics.New()
	router.SetMetrics(m)
	router.RecordStats()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spanProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MatchSpans)
	defer spanProducer.Close()
	recorder := spans.NewRecorder(spanProducer, cfg.Search.SpanBatchSize, cfg.Search.SpanFlushInterval, m)
	recorder.Start(ctx)
	defer recorder.Close()

	go reloadSegments(ctx, router, queryCache, cfg.Search.ReloadInterval)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if router.NumShards() > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d shards active", router.NumShards())}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no shards"}
	})
	if redisClient != nil {
		checker.Register("redis", health.Optional(health.PingCheck(redisClient)))
	} else {
		checker.Register("redis", func(context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		})
	}

	exec := executor.New(executor.Shards(router.Engines()), executor.Options{
		MaxConcurrentEvaluations: cfg.Search.MaxConcurrentEvaluations,
		TimeoutPerShard:          cfg.Search.TimeoutPerShard,
		MaxPositionsPerTerm:      cfg.Proximity.MaxPositionsPerTerm,
		DefaultMaxScore:          cfg.Proximity.DefaultMaxScore,
	}, m)
	h := handler.New(exec, queryCache, recorder, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/proximity", h.Proximity)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.RateLimit(limiter),
			middleware.Timeout(cfg.Server.RequestTimeout),
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
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	slog.Info("search service stopped")
}

// reloadSegments picks up segments the indexer flushed since the last tick
// and drops cached results computed without them.
func reloadSegments(ctx context.Context, router *shard.Router, queryCache *cache.QueryCache, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := router.ReloadAll(); n > 0 {
				slog.Info("new segments loaded", "segments", n)
				router.RecordStats()
				if queryCache != nil {
					if _, err := queryCache.Invalidate(ctx); err != nil {
						slog.Warn("cache invalidation after reload failed", "error", err)
					}
				}
			}
		}
	}
}
