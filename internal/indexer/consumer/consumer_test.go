package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

type statusLog map[string]string

func (s statusLog) UpdateStatus(_ context.Context, docID, status string) error {
	s[docID] = status
	return nil
}

func newRouter(t *testing.T) *shard.Router {
	t.Helper()
	r, err := shard.NewRouter(config.IndexerConfig{DataDir: t.TempDir(), NumShards: 2, SegmentMaxSize: 1 << 30}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func encode(t *testing.T, event ingestion.IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return b
}

func TestHandleMessageIndexes(t *testing.T) {
	router := newRouter(t)
	statuses := statusLog{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	handle := HandleMessage(router, statuses, m)

	shardID := shard.Assign("doc-1", 2)
	err := handle(context.Background(), nil, encode(t, ingestion.IngestEvent{
		DocumentID: "doc-1",
		Fields:     map[string]string{"body": "quick brown fox"},
		ShardID:    shardID,
	}))
	require.NoError(t, err)

	engine, err := router.Route(shardID)
	require.NoError(t, err)
	postings, err := engine.Lookup("fox")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "doc-1", postings[0].DocID)
	assert.Equal(t, ingestion.StatusIndexed, statuses["doc-1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsIndexedTotal))
}

func TestHandleMessageReroutesUnknownShard(t *testing.T) {
	router := newRouter(t)
	handle := HandleMessage(router, nil, nil)

	err := handle(context.Background(), nil, encode(t, ingestion.IngestEvent{
		DocumentID: "doc-9",
		Fields:     map[string]string{"body": "hello"},
		ShardID:    7,
	}))
	require.NoError(t, err)

	_, engine := router.ForDocument("doc-9")
	postings, err := engine.Lookup("hello")
	require.NoError(t, err)
	assert.Len(t, postings, 1)
}

func TestHandleMessageSkipsBadPayloads(t *testing.T) {
	handle := HandleMessage(newRouter(t), nil, nil)

	err := handle(context.Background(), nil, []byte("{not json"))
	assert.True(t, errors.Is(err, kafka.ErrSkip))

	err = handle(context.Background(), nil, encode(t, ingestion.IngestEvent{Fields: map[string]string{"body": "x"}}))
	assert.True(t, errors.Is(err, kafka.ErrSkip))
}
