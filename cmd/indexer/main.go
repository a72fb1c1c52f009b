// Command indexer consumes ingest events and maintains the shard indexes
// read by the searcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion/store"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/postgres"
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
	slog.Info("starting indexer service", "num_shards", cfg.Indexer.NumShards)

	tok := tokenizer.New(cfg.Proximity.Synonyms, cfg.Proximity.SynonymScore)
	router, err := shard.NewRouter(cfg.Indexer, tok)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	var statuses consumer.StatusUpdater
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document status will not be updated", "error", err)
	} else {
		defer db.Close()
		statuses = store.New(db)
	}

	m := metrics.New()
	router.SetMetrics(m)
	router.RecordStats()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for shardID, engine := range router.Engines() {
		engine.StartFlushLoop(ctx)
		slog.Debug("flush loop started", "shard_id", shardID)
	}

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleMessage(router, statuses, m),
	)
	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer service stopped")
}
