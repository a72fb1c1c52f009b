package proximity

import "sort"

// OrderedMatcher implements phrase and adjacency semantics: one position per
// term, taken in query order, such that for each consecutive pair (a, b)
// b.Offset >= a.LowOffset and b.LowOffset <= a.Offset+distance, and the
// whole chain spans at most distance (max low offset minus min offset).
// Adjacent identical terms may not share an offset unless one of the two
// positions allows the collision.
//
// A chain whose smallest offset is m lies in the window of positions with
// offset >= m and low offset <= m+distance, and inside that window the upper
// adjacency bound and the span bound hold by construction. The matcher
// visits every candidate m in ascending order and extends a chain slot by
// slot, keeping for each slot only the reachable positions with the lowest
// low offsets. Those are found with range-minimum queries, so one window
// costs O(terms * log positions).
type OrderedMatcher struct{}

type slotBounds struct {
	// first is the greatest per-slot minimum low offset: every chain
	// reaches at least this far.
	first int64
	// last is the smallest per-slot maximum offset: every chain starts at
	// or before it.
	last int64
}

func boundsOf(positions [][]Position) slotBounds {
	var b slotBounds
	for s, ps := range positions {
		minLow := ps[0].LowOffset
		for _, p := range ps[1:] {
			if p.LowOffset < minLow {
				minLow = p.LowOffset
			}
		}
		maxOffset := ps[len(ps)-1].Offset
		if s == 0 || minLow > b.first {
			b.first = minLow
		}
		if s == 0 || maxOffset < b.last {
			b.last = maxOffset
		}
	}
	return b
}

func (OrderedMatcher) Match(terms []string, positions [][]Position, distance int) (Span, bool) {
	n := len(terms)
	if n < 2 || distance < 0 || len(positions) < n {
		return Span{}, false
	}
	positions = positions[:n]
	for _, ps := range positions {
		if len(ps) == 0 {
			return Span{}, false
		}
	}
	d := int64(distance)
	b := boundsOf(positions)
	lo, hi := satSub(b.first, d), b.last
	if lo > hi {
		return Span{}, false
	}

	c := newChainSearch(terms, positions, d)
	cursors := make([]int, n)
	for s, ps := range positions {
		cursors[s] = sort.Search(len(ps), func(i int) bool { return ps[i].Offset >= lo })
	}
	for {
		m, ok := nextStart(positions, cursors)
		if !ok || m > hi {
			return Span{}, false
		}
		if c.try(m) {
			return c.span(), true
		}
		for s, ps := range positions {
			for cursors[s] < len(ps) && ps[cursors[s]].Offset <= m {
				cursors[s]++
			}
		}
	}
}

// nextStart returns the smallest offset under the cursors.
func nextStart(positions [][]Position, cursors []int) (int64, bool) {
	var m int64
	found := false
	for s, ps := range positions {
		if cursors[s] == len(ps) {
			continue
		}
		if o := ps[cursors[s]].Offset; !found || o < m {
			m, found = o, true
		}
	}
	return m, found
}

// reach summarizes the reachable positions of one slot by index: best has
// the lowest low offset, alt the lowest among those at a different offset
// than best, free the lowest that allows collisions. -1 means none.
type reach struct {
	best, alt, free int
}

type chainSearch struct {
	terms     []string
	positions [][]Position
	trees     []*lowTree
	distance  int64
	reach     []reach
}

func newChainSearch(terms []string, positions [][]Position, d int64) *chainSearch {
	c := &chainSearch{
		terms:     terms,
		positions: positions,
		trees:     make([]*lowTree, len(positions)),
		distance:  d,
		reach:     make([]reach, len(positions)),
	}
	for s, ps := range positions {
		for prev := 0; prev < s; prev++ {
			if sameList(ps, positions[prev]) {
				c.trees[s] = c.trees[prev]
				break
			}
		}
		if c.trees[s] == nil {
			c.trees[s] = newLowTree(ps)
		}
	}
	return c
}

func sameList(a, b []Position) bool {
	return len(a) == len(b) && &a[0] == &b[0]
}

// try reports whether a chain exists inside the window starting at m,
// recording each slot's reachable summary.
func (c *chainSearch) try(m int64) bool {
	limit := satAdd(m, c.distance)
	for s, ps := range c.positions {
		t := c.trees[s]
		from := m
		var prev Position
		if s > 0 {
			prev = c.positions[s-1][c.reach[s-1].best]
			if prev.LowOffset > from {
				from = prev.LowOffset
			}
		}
		x := sort.Search(len(ps), func(i int) bool { return ps[i].Offset >= from })
		reg := region{{lo: x, hi: len(ps)}}
		if s > 0 && c.terms[s] == c.terms[s-1] && !prev.AllowCollision && !c.rescues(s-1, prev.Offset) {
			// Non-colliding positions at prev's offset could only follow
			// prev itself, which they may not.
			bi, bj := offsetRange(ps, prev.Offset)
			reg = append(reg.without(bi, bj), interval{lo: bi, hi: bj, freeOnly: true})
		}

		best := t.within(t.lowest(reg), limit)
		if best < 0 {
			return false
		}
		bi, bj := offsetRange(ps, ps[best].Offset)
		c.reach[s] = reach{
			best: best,
			alt:  t.within(t.lowest(reg.without(bi, bj)), limit),
			free: t.within(t.lowestFree(reg), limit),
		}
	}
	return true
}

// rescues reports whether slot s can supply a predecessor at or before
// offset other than its best: an alternative at another offset or one that
// allows collisions.
func (c *chainSearch) rescues(s int, offset int64) bool {
	r := c.reach[s]
	ps := c.positions[s]
	return (r.alt >= 0 && ps[r.alt].LowOffset <= offset) || (r.free >= 0 && ps[r.free].LowOffset <= offset)
}

// parent picks the predecessor in slot s that p follows.
func (c *chainSearch) parent(s int, p Position) int {
	r := c.reach[s]
	ps := c.positions[s]
	b := ps[r.best]
	if c.terms[s] != c.terms[s+1] || p.AllowCollision || b.AllowCollision || b.Offset != p.Offset {
		return r.best
	}
	if r.alt >= 0 && ps[r.alt].LowOffset <= p.Offset {
		return r.alt
	}
	return r.free
}

// span walks the chain back from the last slot's best position and reports
// its min offset and max low offset.
func (c *chainSearch) span() Span {
	last := len(c.positions) - 1
	p := c.positions[last][c.reach[last].best]
	span := Span{Start: p.Offset, End: p.LowOffset}
	for s := last - 1; s >= 0; s-- {
		p = c.positions[s][c.parent(s, p)]
		if p.Offset < span.Start {
			span.Start = p.Offset
		}
		if p.LowOffset > span.End {
			span.End = p.LowOffset
		}
	}
	if span.End < span.Start {
		span.End = span.Start
	}
	return span
}

// offsetRange returns the index range of ps holding offset.
func offsetRange(ps []Position, offset int64) (int, int) {
	i := sort.Search(len(ps), func(k int) bool { return ps[k].Offset >= offset })
	j := sort.Search(len(ps), func(k int) bool { return ps[k].Offset > offset })
	return i, j
}

// interval is an index range of one slot's positions. freeOnly keeps only
// the positions that allow collisions.
type interval struct {
	lo, hi   int
	freeOnly bool
}

type region []interval

// without removes the index range [lo, hi) from r.
func (r region) without(lo, hi int) region {
	out := make(region, 0, len(r)+1)
	for _, iv := range r {
		if left := min(iv.hi, lo); left > iv.lo {
			out = append(out, interval{lo: iv.lo, hi: left, freeOnly: iv.freeOnly})
		}
		if right := max(iv.lo, hi); right < iv.hi {
			out = append(out, interval{lo: right, hi: iv.hi, freeOnly: iv.freeOnly})
		}
	}
	return out
}

// lowTree is a segment tree answering "index of the lowest low offset in a
// range", ties going to the smaller index. free answers the same over the
// positions that allow collisions.
type lowTree struct {
	ps   []Position
	n    int
	all  []int32
	free []int32
}

func newLowTree(ps []Position) *lowTree {
	n := len(ps)
	t := &lowTree{ps: ps, n: n, all: make([]int32, 2*n), free: make([]int32, 2*n)}
	for i, p := range ps {
		t.all[n+i] = int32(i)
		t.free[n+i] = -1
		if p.AllowCollision {
			t.free[n+i] = int32(i)
		}
	}
	for i := n - 1; i > 0; i-- {
		t.all[i] = t.better(t.all[2*i], t.all[2*i+1])
		t.free[i] = t.better(t.free[2*i], t.free[2*i+1])
	}
	return t
}

func (t *lowTree) better(a, b int32) int32 {
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	}
	la, lb := t.ps[a].LowOffset, t.ps[b].LowOffset
	if lb < la || (lb == la && b < a) {
		return b
	}
	return a
}

func (t *lowTree) query(tree []int32, lo, hi int) int32 {
	res := int32(-1)
	for lo, hi = lo+t.n, hi+t.n; lo < hi; lo, hi = lo>>1, hi>>1 {
		if lo&1 == 1 {
			res = t.better(res, tree[lo])
			lo++
		}
		if hi&1 == 1 {
			hi--
			res = t.better(res, tree[hi])
		}
	}
	return res
}

func (t *lowTree) lowest(r region) int {
	res := int32(-1)
	for _, iv := range r {
		tree := t.all
		if iv.freeOnly {
			tree = t.free
		}
		res = t.better(res, t.query(tree, iv.lo, iv.hi))
	}
	return int(res)
}

func (t *lowTree) lowestFree(r region) int {
	res := int32(-1)
	for _, iv := range r {
		res = t.better(res, t.query(t.free, iv.lo, iv.hi))
	}
	return int(res)
}

// within returns i when its low offset is at most limit, else -1.
func (t *lowTree) within(i int, limit int64) int {
	if i < 0 || t.ps[i].LowOffset > limit {
		return -1
	}
	return i
}
