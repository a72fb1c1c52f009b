package proximity

import (
	"container/heap"
	"sort"
)

// UnorderedMatcher implements within-distance semantics: one position per
// term, in any order, with max(low offset) - min(offset) <= distance.
// Slots holding the same term take distinct occurrences of it, and two of
// them may share an offset only when one of the positions allows the
// collision.
//
// Every window start m is one of the offsets. For a start m each term
// contributes its need lowest low offsets among positions at or after m,
// and the window holds when the largest of those is within distance of m.
// Starts are visited in ascending order with one forward cursor per term.
type UnorderedMatcher struct{}

// termGroup is the set of slots holding one distinct term.
type termGroup struct {
	order int
	need  int
	// list holds the positions the slots may take, sorted by offset.
	list []Position
	// kth[i] is the need-th smallest low offset of list[i:]. It is only
	// meaningful while len(list)-i >= need.
	kth []int64
	idx int
}

func (g *termGroup) head() Position { return g.list[g.idx] }

func (g *termGroup) exhausted() bool { return len(g.list)-g.idx < g.need }

// chosen returns the positions the group contributes at its cursor.
func (g *termGroup) chosen() []Position {
	rest := make([]Position, len(g.list)-g.idx)
	copy(rest, g.list[g.idx:])
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].LowOffset < rest[j].LowOffset })
	return rest[:g.need]
}

// groupTerms folds repeated terms into one group each, in order of first
// appearance. A repeated term draws from the list of its first slot.
func groupTerms(terms []string, positions [][]Position) []*termGroup {
	byTerm := make(map[string]*termGroup, len(terms))
	var groups []*termGroup
	for s, term := range terms {
		if g, ok := byTerm[term]; ok {
			g.need++
			continue
		}
		g := &termGroup{order: len(groups), need: 1, list: positions[s]}
		byTerm[term] = g
		groups = append(groups, g)
	}
	for _, g := range groups {
		if g.need > 1 {
			g.list = distinctOccurrences(g.list)
		}
		g.kth = kthLowest(g.list, g.need)
	}
	return groups
}

// distinctOccurrences keeps, at each offset, every position that allows a
// collision plus the non-colliding one with the lowest low offset. Any set
// of occurrences one term may fill several slots with fits in what is kept.
func distinctOccurrences(ps []Position) []Position {
	var kept []Position
	for i := 0; i < len(ps); {
		j, keep := i, -1
		for ; j < len(ps) && ps[j].Offset == ps[i].Offset; j++ {
			if !ps[j].AllowCollision && (keep < 0 || ps[j].LowOffset < ps[keep].LowOffset) {
				keep = j
			}
		}
		for k := i; k < j; k++ {
			if ps[k].AllowCollision || k == keep {
				kept = append(kept, ps[k])
			}
		}
		i = j
	}
	return kept
}

type lowHeap []int64

func (h lowHeap) Len() int           { return len(h) }
func (h lowHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h lowHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *lowHeap) Push(x interface{}) {
	*h = append(*h, x.(int64))
}

func (h *lowHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kthLowest computes, for every suffix of ps, its k-th smallest low offset,
// keeping the k smallest seen so far in a max-heap while walking backwards.
func kthLowest(ps []Position, k int) []int64 {
	out := make([]int64, len(ps))
	h := make(lowHeap, 0, k+1)
	for i := len(ps) - 1; i >= 0; i-- {
		heap.Push(&h, ps[i].LowOffset)
		if h.Len() > k {
			heap.Pop(&h)
		}
		if h.Len() == k {
			out[i] = h[0]
		}
	}
	return out
}

type groupHeap []*termGroup

func (h groupHeap) Len() int { return len(h) }

func (h groupHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return h[i].order < h[j].order
}

func (h groupHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *groupHeap) Push(x interface{}) {
	*h = append(*h, x.(*termGroup))
}

func (h *groupHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (UnorderedMatcher) Match(terms []string, positions [][]Position, distance int) (Span, bool) {
	n := len(terms)
	if n < 2 || distance < 0 || len(positions) < n {
		return Span{}, false
	}
	d := int64(distance)
	groups := groupTerms(terms, positions[:n])
	h := make(groupHeap, 0, len(groups))
	var maxLow int64
	for i, g := range groups {
		if g.exhausted() {
			return Span{}, false
		}
		if i == 0 || g.kth[0] > maxLow {
			maxLow = g.kth[0]
		}
		h = append(h, g)
	}
	heap.Init(&h)

	// Suffixes only shrink as the start moves right, so every kth value
	// and therefore maxLow is non-decreasing.
	for {
		m := h[0].head().Offset
		if satSub(maxLow, m) <= d {
			return windowSpan(groups), true
		}
		for h[0].head().Offset == m {
			g := h[0]
			g.idx++
			if g.exhausted() {
				return Span{}, false
			}
			if low := g.kth[g.idx]; low > maxLow {
				maxLow = low
			}
			heap.Fix(&h, 0)
		}
	}
}

// windowSpan reports the min offset and max low offset of the positions
// the groups contribute at their cursors.
func windowSpan(groups []*termGroup) Span {
	var span Span
	first := true
	for _, g := range groups {
		for _, p := range g.chosen() {
			if first || p.Offset < span.Start {
				span.Start = p.Offset
			}
			if first || p.LowOffset > span.End {
				span.End = p.LowOffset
			}
			first = false
		}
	}
	if span.End < span.Start {
		span.End = span.Start
	}
	return span
}
