// Package consumer turns ingest events from Kafka into indexed documents.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

// ShardRouter resolves the engine that owns a document.
type ShardRouter interface {
	Route(shardID int) (*indexer.Engine, error)
	ForDocument(docID string) (int, *indexer.Engine)
}

// StatusUpdater records the indexing outcome. The ingestion store
// implements it.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, docID, status string) error
}

// HandleMessage returns a kafka.MessageHandler that indexes each ingest
// event into its shard. Undecodable events are skipped. statuses and m may
// be nil.
func HandleMessage(router ShardRouter, statuses StatusUpdater, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			return err
		}
		if event.DocumentID == "" {
			return fmt.Errorf("ingest event without document id: %w", kafka.ErrSkip)
		}

		shardID := event.ShardID
		engine, err := router.Route(shardID)
		if err != nil {
			// The shard count changed since ingestion; rehash.
			shardID, engine = router.ForDocument(event.DocumentID)
			logger.Warn("event shard out of range, rerouted",
				"doc_id", event.DocumentID,
				"event_shard", event.ShardID,
				"shard_id", shardID,
			)
		}

		err = engine.IndexDocument(index.Document{ID: event.DocumentID, Fields: event.Fields})
		if err != nil {
			updateStatus(ctx, statuses, event.DocumentID, ingestion.StatusFailed, logger)
			return fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
		}
		updateStatus(ctx, statuses, event.DocumentID, ingestion.StatusIndexed, logger)
		if m != nil {
			m.DocsIndexedTotal.Inc()
		}
		logger.Info("document indexed",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
			"fields", len(event.Fields),
		)
		return nil
	}
}

func updateStatus(ctx context.Context, statuses StatusUpdater, docID, status string, logger *slog.Logger) {
	if statuses == nil {
		return
	}
	if err := statuses.UpdateStatus(ctx, docID, status); err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
