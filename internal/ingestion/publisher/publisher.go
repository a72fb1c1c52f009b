// Package publisher persists documents to PostgreSQL and publishes ingest
// events to Kafka for downstream indexing. Documents get a UUID and are
// assigned to a shard by hashing it.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
)

// DocumentStore is the persistence the publisher needs.
type DocumentStore interface {
	Insert(ctx context.Context, rec store.Record) error
	FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error)
}

// EventPublisher sends events to the ingest topic.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher coordinates document persistence and Kafka event production.
type Publisher struct {
	store     DocumentStore
	producer  EventPublisher
	numShards int
	newID     func() string
	logger    *slog.Logger
}

// New creates a Publisher with the given store and Kafka producer.
func New(st DocumentStore, producer EventPublisher, numShards int) *Publisher {
	return &Publisher{
		store:     st,
		producer:  producer,
		numShards: numShards,
		newID:     uuid.NewString,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest persists the document, assigns a shard, and publishes an
// IngestEvent to Kafka. A repeated idempotency key returns the original
// document without re-insertion.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.DocumentID,
			)
			return existing, nil
		}
	}

	docID := p.newID()
	shardID := shard.Assign(docID, p.numShards)
	rec := store.Record{
		ID:             docID,
		Fields:         fieldNames(req.Fields),
		ContentSize:    contentSize(req.Fields),
		ShardID:        shardID,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := p.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, apperrors.ErrDocumentExists) && req.IdempotencyKey != "" {
			if existing, findErr := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	event := kafka.Event{
		Key: strconv.Itoa(shardID),
		Value: ingestion.IngestEvent{
			DocumentID: docID,
			Fields:     req.Fields,
			ShardID:    shardID,
			IngestedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"doc_id", docID,
			"shard_id", shardID,
			"error", err,
		)
	}
	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     ingestion.StatusPending,
		ShardID:    shardID,
	}, nil
}

func fieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contentSize(fields map[string]string) int {
	n := 0
	for _, text := range fields {
		n += len(text)
	}
	return n
}
