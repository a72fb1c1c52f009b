package shard

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

func TestAssignIsStableAndInRange(t *testing.T) {
	counts := make([]int, 4)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("doc-%d", i)
		s := Assign(id, 4)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 4)
		assert.Equal(t, s, Assign(id, 4))
		counts[s]++
	}
	for _, c := range counts {
		assert.Greater(t, c, 100, "distribution should not be badly skewed")
	}
	assert.Zero(t, Assign("anything", 1))
}

func TestRouter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRouter(config.IndexerConfig{DataDir: dir, NumShards: 3, SegmentMaxSize: 1 << 30}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, r.NumShards())
	for i := 0; i < 3; i++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("shard-%d", i)))
		assert.NoError(t, err)
	}
	_, err = r.Route(3)
	assert.Error(t, err)

	id, engine := r.ForDocument("doc-7")
	routed, err := r.Route(id)
	require.NoError(t, err)
	assert.Same(t, engine, routed)

	require.NoError(t, engine.IndexDocument(index.Document{ID: "doc-7", Fields: map[string]string{"body": "hello"}}))
	require.NoError(t, r.FlushAll())
	require.NoError(t, r.Close())
}

func TestNewRouterRejectsZeroShards(t *testing.T) {
	_, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestFlushAllRecordsMetrics(t *testing.T) {
	r, err := NewRouter(config.IndexerConfig{DataDir: t.TempDir(), NumShards: 2, SegmentMaxSize: 1 << 30}, nil)
	require.NoError(t, err)
	defer r.Close()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r.SetMetrics(m)

	id, engine := r.ForDocument("doc-1")
	require.NoError(t, engine.IndexDocument(index.Document{ID: "doc-1", Fields: map[string]string{"body": "hello world"}}))
	require.NoError(t, r.FlushAll())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShardDocCount.WithLabelValues(fmt.Sprint(id))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ShardDocCount.WithLabelValues(fmt.Sprint(1-id))))
}
