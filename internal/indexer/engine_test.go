package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
)

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := NewEngine(config.IndexerConfig{
		DataDir:        dir,
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	}, nil)
	require.NoError(t, err)
	return e
}

func doc(id, body string) index.Document {
	return index.Document{ID: id, Fields: map[string]string{"body": body}}
}

func TestLookupMergesMemoryAndSegments(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.IndexDocument(doc("doc-1", "quick brown fox")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("doc-2", "brown bear")))

	got, err := e.Lookup("brown")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, got.Documents())

	stats := e.Stats()
	assert.Equal(t, int64(2), stats.TotalDocs)
	assert.Equal(t, int64(5), stats.TotalLength)
	assert.InDelta(t, 2.5, stats.AvgDocLength, 1e-9)
	assert.Equal(t, 3, e.DocLength("doc-1"))
	assert.Equal(t, 2, e.DocLength("doc-2"))
}

func TestNewerVersionWins(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.IndexDocument(doc("doc-1", "alpha beta")))
	require.NoError(t, e.Flush())
	require.NoError(t, e.IndexDocument(doc("doc-1", "beta alpha")))

	got, err := e.Lookup("alpha")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Positions[0].Offset)
	assert.Equal(t, int64(1), e.Stats().TotalDocs)
}

func TestRecoveryAndReload(t *testing.T) {
	dir := t.TempDir()
	writer := newTestEngine(t, dir)
	require.NoError(t, writer.IndexDocument(doc("doc-1", "persisted words")))
	require.NoError(t, writer.Flush())

	reader := newTestEngine(t, dir)
	defer reader.Close()
	got, err := reader.Lookup("persist")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, writer.IndexDocument(doc("doc-2", "fresh words")))
	require.NoError(t, writer.Close())

	assert.Equal(t, 1, reader.ReloadSegments())
	assert.Zero(t, reader.ReloadSegments())
	got, err = reader.Lookup("word")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, got.Documents())
}

func TestIndexDocumentRequiresID(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	assert.Error(t, e.IndexDocument(index.Document{}))
}
