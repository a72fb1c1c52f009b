// Package spans publishes the spans of proximity matches to Kafka so that
// downstream consumers can highlight them. Events are buffered and sent in
// batches.
package spans

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/resilience"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	// maxBufferedBatches bounds the buffer while the broker is failing.
	maxBufferedBatches = 3
)

// MatchSpan records where one proximity clause matched one document.
type MatchSpan struct {
	DocumentID string    `json:"document_id"`
	Field      string    `json:"field"`
	Start      int64     `json:"start"`
	End        int64     `json:"end"`
	Function   string    `json:"function"`
	Terms      []string  `json:"terms"`
	Query      string    `json:"query"`
	MatchedAt  time.Time `json:"matched_at"`
}

// BatchPublisher is implemented by kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Recorder struct {
	producer      BatchPublisher
	breaker       *resilience.Breaker
	backoff       resilience.Backoff
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	started       atomic.Bool
	done          chan struct{}
}

// NewRecorder returns a Recorder that flushes when batchSize spans are
// buffered or every flushInterval. m may be nil.
func NewRecorder(producer BatchPublisher, batchSize int, flushInterval time.Duration, m *metrics.Metrics) *Recorder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &Recorder{
		producer:      producer,
		breaker:       resilience.NewBreaker("match-spans", resilience.BreakerConfig{}),
		backoff:       resilience.Backoff{Attempts: 3, Initial: 50 * time.Millisecond, Max: time.Second},
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "span-recorder"),
		done:          make(chan struct{}),
	}
}

// Start runs the periodic flush loop until ctx is cancelled, then flushes
// what is left. Only the first call has an effect.
func (r *Recorder) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				r.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	r.logger.Info("span recorder started",
		"batch_size", r.batchSize,
		"flush_interval", r.flushInterval,
	)
}

// RecordResult buffers one span per clause match in result.
func (r *Recorder) RecordResult(result *executor.SearchResult) {
	if result == nil || len(result.Clauses) == 0 {
		return
	}
	now := time.Now().UTC()
	var spans []MatchSpan
	for _, doc := range result.Results {
		for _, m := range doc.Matches {
			if m.Clause < 0 || m.Clause >= len(result.Clauses) {
				continue
			}
			clause := result.Clauses[m.Clause]
			spans = append(spans, spanOf(doc.DocID, clause, m.Field, m.Start, m.End, result.Query, now))
		}
	}
	r.Record(spans...)
}

func spanOf(docID string, c parser.ProximityClause, field string, start, end int64, query string, at time.Time) MatchSpan {
	return MatchSpan{
		DocumentID: docID,
		Field:      field,
		Start:      start,
		End:        end,
		Function:   string(c.Function),
		Terms:      c.Terms,
		Query:      query,
		MatchedAt:  at,
	}
}

// Record buffers spans, flushing in the background once a batch is full.
func (r *Recorder) Record(spans ...MatchSpan) {
	if len(spans) == 0 {
		return
	}
	r.mu.Lock()
	for _, s := range spans {
		r.buffer = append(r.buffer, kafka.Event{Key: s.DocumentID, Value: s})
	}
	full := len(r.buffer) >= r.batchSize
	r.mu.Unlock()
	if full {
		go r.Flush(context.Background())
	}
}

// Close waits for the flush loop started by Start to finish. Without a
// running loop it flushes the buffer itself.
func (r *Recorder) Close() {
	if !r.started.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Flush(ctx)
		return
	}
	<-r.done
}

func (r *Recorder) BufferLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Flush publishes everything buffered, retrying through the breaker. Failed
// batches are put back, keeping at most maxBufferedBatches batches.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = make([]kafka.Event, 0, r.batchSize)
	r.mu.Unlock()

	err := resilience.Retry(ctx, r.backoff, func(ctx context.Context) error {
		return r.breaker.Do(ctx, func(ctx context.Context) error {
			return r.producer.PublishBatch(ctx, batch)
		})
	})
	if err != nil {
		r.count("error", len(batch))
		r.logger.Error("span batch publish failed", "batch_size", len(batch), "error", err)
		r.mu.Lock()
		r.buffer = append(batch, r.buffer...)
		if limit := r.batchSize * maxBufferedBatches; len(r.buffer) > limit {
			dropped := len(r.buffer) - limit
			r.buffer = r.buffer[:limit]
			r.logger.Warn("span buffer overflow, spans dropped", "dropped", dropped)
		}
		r.mu.Unlock()
		return
	}
	r.count("ok", len(batch))
	r.logger.Debug("span batch published", "spans", len(batch))
}

func (r *Recorder) count(status string, n int) {
	if r.metrics != nil {
		r.metrics.MatchSpansPublishedTotal.WithLabelValues(status).Add(float64(n))
	}
}
