package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
)

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	m := index.NewMemoryIndex(tokenizer.New(map[string]string{"new york": "nyc"}, 50), []string{"tags"})
	m.AddDocument(index.Document{ID: "doc-1", Fields: map[string]string{"body": "love new york", "tags": "travel"}})
	m.AddDocument(index.Document{ID: "doc-2", Fields: map[string]string{"body": "york minster"}})

	name, err := NewWriter(dir).Write(m.Snapshot())
	require.NoError(t, err)
	return filepath.Join(dir, name)
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(2), r.DocCount())
	assert.Equal(t, map[string]int{"doc-1": 4, "doc-2": 2}, r.DocLengths())

	york, err := r.Lookup("york")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, york.Documents())

	nyc, err := r.Lookup("nyc")
	require.NoError(t, err)
	require.Len(t, nyc, 1)
	assert.Equal(t, []proximity.Position{proximity.WithSkips(2, 1).Scored(50)}, nyc[0].Positions)

	travel, err := r.Lookup("travel")
	require.NoError(t, err)
	require.Len(t, travel, 1)
	assert.True(t, travel[0].Expansion)

	missing, err := r.Lookup("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")
}

func TestWriteEmptySnapshot(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(index.Snapshot{})
	assert.Error(t, err)
}

func TestOpenRejectsCorruptDictionary(t *testing.T) {
	path := writeSample(t, t.TempDir())

	r, err := OpenReader(path)
	require.NoError(t, err)
	dictOffset := r.header.DictOffset
	require.NoError(t, r.Close())

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("X"), dictOffset+1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+Extension)
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0o644))

	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "magic")
}
