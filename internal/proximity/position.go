// Package proximity evaluates phrase (ordered) and within-distance
// (unordered) constraints over positional term occurrences. It is a pure,
// synchronous computation: callers hand it a PositionIndex for the terms of
// one query and receive the first document/field whose positions satisfy the
// constraint, together with the matched offset span.
package proximity

import (
	"math"
	"sort"
)

// Position is a single occurrence of a term inside one zone.
//
// LowOffset is never greater than Offset. A synonym that replaced a run of
// several tokens is recorded at the offset of the run's last token with
// LowOffset pointing at its first token, so the whole run occupies one slot
// when distances are measured.
type Position struct {
	Offset         int64  `json:"o"`
	LowOffset      int64  `json:"lo"`
	Score          int64  `json:"s,omitempty"`
	HasScore       bool   `json:"hs,omitempty"`
	AllowCollision bool   `json:"zc,omitempty"`
	Skips          uint32 `json:"k,omitempty"`
}

// At returns an unscored position occupying a single offset.
func At(offset int64) Position {
	return Position{Offset: offset, LowOffset: offset}
}

// WithSkips returns a position that absorbs the preceding skips tokens.
func WithSkips(offset int64, skips uint32) Position {
	return Position{
		Offset:    offset,
		LowOffset: satSub(offset, int64(skips)),
		Skips:     skips,
	}
}

// Scored returns a copy of p carrying the given score.
func (p Position) Scored(score int64) Position {
	p.Score = score
	p.HasScore = true
	return p
}

// Colliding returns a copy of p that may share its offset with an adjacent
// occurrence of the same term.
func (p Position) Colliding() Position {
	p.AllowCollision = true
	return p
}

func (p Position) normalized() Position {
	if p.LowOffset > p.Offset {
		p.LowOffset = p.Offset
	}
	return p
}

// Less orders positions by offset, then by low offset.
func Less(a, b Position) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.LowOffset < b.LowOffset
}

// Span is the offset range reported by a successful match.
type Span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// PositionList is an immutable, sorted list of positions for one term in one
// zone. The same list may be referenced by several query terms, so nothing
// in this package writes to it after construction.
type PositionList struct {
	positions []Position
}

// NewPositionList copies, normalizes and sorts the given positions.
func NewPositionList(positions ...Position) *PositionList {
	ps := make([]Position, len(positions))
	for i, p := range positions {
		ps[i] = p.normalized()
	}
	sort.SliceStable(ps, func(i, j int) bool { return Less(ps[i], ps[j]) })
	return &PositionList{positions: ps}
}

// Len returns the number of positions in the list.
func (l *PositionList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.positions)
}

// Clone returns a private copy of the positions.
func (l *PositionList) Clone() []Position {
	if l == nil {
		return nil
	}
	out := make([]Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// view exposes the backing slice to the matchers, which only read it.
func (l *PositionList) view() []Position {
	if l == nil {
		return nil
	}
	return l.positions
}

func satAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func satSub(a, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	return satAdd(a, -b)
}
