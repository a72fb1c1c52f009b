package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/ranker"
)

func ids(docs []ranker.ScoredDoc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.DocID
	}
	return out
}

func TestMergeInterleavesShards(t *testing.T) {
	shards := [][]ranker.ScoredDoc{
		{{DocID: "a", Score: 9}, {DocID: "c", Score: 5}, {DocID: "e", Score: 1}},
		{{DocID: "b", Score: 7}, {DocID: "d", Score: 5}},
		nil,
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(Merge(shards, 10)))
	assert.Equal(t, []string{"a", "b", "c"}, ids(Merge(shards, 3)))
}

func TestMergeDefaultsAndDuplicates(t *testing.T) {
	var shard []ranker.ScoredDoc
	for i := 0; i < 15; i++ {
		shard = append(shard, ranker.ScoredDoc{DocID: string(rune('a' + i)), Score: float64(100 - i)})
	}
	assert.Len(t, Merge([][]ranker.ScoredDoc{shard}, 0), defaultLimit)

	dup := [][]ranker.ScoredDoc{
		{{DocID: "x", Score: 3}},
		{{DocID: "x", Score: 2}, {DocID: "y", Score: 1}},
	}
	merged := Merge(dup, 10)
	assert.Equal(t, []string{"x", "y"}, ids(merged))
	assert.Equal(t, 3.0, merged[0].Score)
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, 5))
}
