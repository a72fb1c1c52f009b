// Package merger combines per-shard ranked lists into one.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/ranker"
)

const defaultLimit = 10

// Merge performs a k-way merge of shard lists, each already ordered best
// first, and returns the top limit documents. A document reported by more
// than one shard keeps its best entry.
func Merge(shardResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = defaultLimit
	}
	h := make(cursorHeap, 0, len(shardResults))
	for _, results := range shardResults {
		if len(results) > 0 {
			h = append(h, cursor{docs: results})
		}
	}
	heap.Init(&h)

	seen := make(map[string]struct{})
	out := make([]ranker.ScoredDoc, 0, limit)
	for h.Len() > 0 && len(out) < limit {
		c := &h[0]
		doc := c.head()
		if _, dup := seen[doc.DocID]; !dup {
			seen[doc.DocID] = struct{}{}
			out = append(out, doc)
		}
		c.next++
		if c.next == len(c.docs) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

type cursor struct {
	docs []ranker.ScoredDoc
	next int
}

func (c cursor) head() ranker.ScoredDoc { return c.docs[c.next] }

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
