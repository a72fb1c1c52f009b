// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and documents are assigned to shards by hashing their id.
package shard

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

// Assign maps a document id to a shard in [0, numShards).
func Assign(docID string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(docID) % uint64(numShards))
}

// Router maps shard IDs to dedicated indexer.Engine instances. The set of
// engines is fixed at construction.
type Router struct {
	engines []*indexer.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRouter creates cfg.NumShards engines, each in its own sub-directory
// under cfg.DataDir.
func NewRouter(cfg config.IndexerConfig, tok *tokenizer.Tokenizer) (*Router, error) {
	if cfg.NumShards < 1 {
		return nil, fmt.Errorf("invalid shard count %d", cfg.NumShards)
	}
	r := &Router{
		engines: make([]*indexer.Engine, 0, cfg.NumShards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < cfg.NumShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(shardCfg, tok)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines = append(r.engines, engine)
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", cfg.NumShards)
	return r, nil
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, len(r.engines)-1)
	}
	return r.engines[shardID], nil
}

// ForDocument returns the shard ID and Engine that own docID.
func (r *Router) ForDocument(docID string) (int, *indexer.Engine) {
	id := Assign(docID, len(r.engines))
	return id, r.engines[id]
}

// Engines returns the engines indexed by shard ID.
func (r *Router) Engines() []*indexer.Engine {
	out := make([]*indexer.Engine, len(r.engines))
	copy(out, r.engines)
	return out
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return len(r.engines)
}

// SetMetrics makes FlushAll and RecordStats report to m.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// FlushAll flushes every shard engine to disk.
func (r *Router) FlushAll() error {
	var errs []error
	for id, engine := range r.engines {
		status := "ok"
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
			status = "error"
		}
		if r.metrics != nil {
			r.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
		}
	}
	r.RecordStats()
	return errors.Join(errs...)
}

// RecordStats publishes the per-shard document counts.
func (r *Router) RecordStats() {
	if r.metrics == nil {
		return
	}
	for id, engine := range r.engines {
		r.metrics.ShardDocCount.WithLabelValues(strconv.Itoa(id)).Set(float64(engine.Stats().TotalDocs))
	}
}

// ReloadAll tells every shard engine to re-scan for newly flushed segments.
// Returns the total number of new segments loaded across all shards.
func (r *Router) ReloadAll() int {
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	var errs []error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
