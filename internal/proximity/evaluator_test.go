package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zone(field, doc string) ZoneKey { return ZoneKey{Field: field, DocumentID: doc} }

func expansion(field, doc string) ZoneKey {
	return ZoneKey{Field: field, DocumentID: doc, Expansion: true}
}

func fieldSet(fields ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func sampleIndex() *PositionIndex {
	return NewBuilder().
		Add("quick", zone("title", "doc-1"), At(1)).
		Add("brown", zone("title", "doc-1"), At(2)).
		Add("fox", zone("title", "doc-1"), At(3)).
		Add("quick", zone("body", "doc-2"), At(1)).
		Add("brown", zone("body", "doc-2"), At(10)).
		Add("fox", zone("body", "doc-2"), At(20)).
		Add("fox", zone("body", "doc-3"), At(4)).
		Build()
}

func TestEvaluatePhrase(t *testing.T) {
	ev := NewEvaluator(OrderedMatcher{}, Options{})
	idx := sampleIndex()

	res, ok := ev.Evaluate(nil, 2, NoScoreFilter, []string{"quick", "brown", "fox"}, idx)
	require.True(t, ok)
	assert.Equal(t, Result{DocumentID: "doc-1", Field: "title", Span: Span{Start: 1, End: 3}}, res)

	_, ok = ev.Evaluate(nil, 1, NoScoreFilter, []string{"quick", "brown", "fox"}, idx)
	assert.False(t, ok)

	_, ok = ev.Evaluate(nil, 2, NoScoreFilter, []string{"fox", "brown", "quick"}, idx)
	assert.False(t, ok)
}

func TestEvaluateWithin(t *testing.T) {
	ev := NewEvaluator(UnorderedMatcher{}, Options{})

	res, ok := ev.Evaluate(nil, 2, NoScoreFilter, []string{"fox", "brown", "quick"}, sampleIndex())
	require.True(t, ok)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, Span{Start: 1, End: 3}, res.Span)

	res, ok = ev.Evaluate(nil, 19, NoScoreFilter, []string{"fox", "quick"}, sampleIndex())
	require.True(t, ok)
	assert.Equal(t, "doc-1", res.DocumentID, "lowest document id wins")
}

func TestEvaluateInvalidInput(t *testing.T) {
	ev := NewEvaluator(OrderedMatcher{}, Options{})
	idx := sampleIndex()

	tests := []struct {
		name     string
		terms    []string
		distance int
		idx      *PositionIndex
	}{
		{name: "single term", terms: []string{"quick"}, distance: 3, idx: idx},
		{name: "no terms", distance: 3, idx: idx},
		{name: "negative distance", terms: []string{"quick", "brown"}, distance: -1, idx: idx},
		{name: "unknown term", terms: []string{"quick", "slow"}, distance: 3, idx: idx},
		{name: "nil index", terms: []string{"quick", "brown"}, distance: 3},
		{name: "empty index", terms: []string{"quick", "brown"}, distance: 3, idx: NewBuilder().Build()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ev.Evaluate(nil, tc.distance, NoScoreFilter, tc.terms, tc.idx)
			assert.False(t, ok)
		})
	}
}

func TestEvaluateFieldRestriction(t *testing.T) {
	ev := NewEvaluator(OrderedMatcher{}, Options{})
	idx := sampleIndex()
	terms := []string{"quick", "brown", "fox"}

	_, ok := ev.Evaluate(fieldSet("body"), 2, NoScoreFilter, terms, idx)
	assert.False(t, ok, "title match must be ignored")

	res, ok := ev.Evaluate(fieldSet("body"), 19, NoScoreFilter, terms, idx)
	require.True(t, ok)
	assert.Equal(t, Result{DocumentID: "doc-2", Field: "body", Span: Span{Start: 1, End: 20}}, res)
}

func TestEvaluateTriesEveryField(t *testing.T) {
	idx := NewBuilder().
		Add("new", zone("abstract", "doc-1"), At(1)).
		Add("york", zone("abstract", "doc-1"), At(9)).
		Add("new", zone("title", "doc-1"), At(4)).
		Add("york", zone("title", "doc-1"), At(5)).
		Build()

	res, ok := NewEvaluator(OrderedMatcher{}, Options{}).Evaluate(nil, 1, NoScoreFilter, []string{"new", "york"}, idx)
	require.True(t, ok)
	assert.Equal(t, "title", res.Field)
	assert.Equal(t, Span{Start: 4, End: 5}, res.Span)
}

func TestEvaluateExpansionFallback(t *testing.T) {
	idx := NewBuilder().
		Add("red", expansion("tags", "doc-1"), At(0)).
		Add("wine", expansion("tags", "doc-1"), At(1)).
		Build()
	ev := NewEvaluator(OrderedMatcher{}, Options{})
	terms := []string{"red", "wine"}

	_, ok := ev.Evaluate(nil, 1, NoScoreFilter, terms, idx)
	assert.False(t, ok, "expansion zones are only consulted for requested fields")

	res, ok := ev.Evaluate(fieldSet("tags"), 1, NoScoreFilter, terms, idx)
	require.True(t, ok)
	assert.Equal(t, Result{DocumentID: "doc-1", Field: "tags", Span: Span{Start: 0, End: 1}}, res)
}

func TestEvaluateRealZoneTakesPrecedence(t *testing.T) {
	idx := NewBuilder().
		Add("red", zone("tags", "doc-1"), At(0)).
		Add("red", expansion("tags", "doc-1"), At(7)).
		Add("wine", zone("tags", "doc-1"), At(8)).
		Build()

	_, ok := NewEvaluator(OrderedMatcher{}, Options{}).Evaluate(fieldSet("tags"), 1, NoScoreFilter, []string{"red", "wine"}, idx)
	assert.False(t, ok)
}

func TestEvaluateScoreFilter(t *testing.T) {
	idx := NewBuilder().
		Add("big", zone("body", "doc-1"), At(3)).
		Add("apple", zone("body", "doc-1"), WithSkips(5, 1).Scored(50)).
		Build()
	ev := NewEvaluator(OrderedMatcher{}, Options{})
	terms := []string{"big", "apple"}

	res, ok := ev.Evaluate(nil, 1, NoScoreFilter, terms, idx)
	require.True(t, ok)
	assert.Equal(t, Span{Start: 3, End: 4}, res.Span)

	_, ok = ev.Evaluate(nil, 1, 10, terms, idx)
	assert.False(t, ok)

	_, ok = ev.Evaluate(nil, 1, 50, terms, idx)
	assert.True(t, ok)
}

func TestEvaluateMaxPositionsPerTerm(t *testing.T) {
	idx := NewBuilder().
		Add("a", zone("body", "doc-1"), At(1), At(30), At(60)).
		Add("b", zone("body", "doc-1"), At(2)).
		Build()
	terms := []string{"a", "b"}

	_, ok := NewEvaluator(OrderedMatcher{}, Options{MaxPositionsPerTerm: 2}).Evaluate(nil, 1, NoScoreFilter, terms, idx)
	assert.False(t, ok)

	_, ok = NewEvaluator(OrderedMatcher{}, Options{MaxPositionsPerTerm: 3}).Evaluate(nil, 1, NoScoreFilter, terms, idx)
	assert.True(t, ok)
}

func TestEvaluateRepeatedTermSharesList(t *testing.T) {
	idx := NewBuilder().
		Add("bar", zone("body", "doc-1"), At(4), At(5)).
		Add("bar", zone("body", "doc-2"), At(4)).
		Build()
	list := idx.Occurrences("bar")[zone("body", "doc-1")]
	before := list.Clone()

	res, ok := NewEvaluator(OrderedMatcher{}, Options{}).Evaluate(nil, 1, NoScoreFilter, []string{"bar", "bar"}, idx)
	require.True(t, ok)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, Span{Start: 4, End: 5}, res.Span)
	assert.Equal(t, before, list.Clone())
}

func TestEvaluateWithinRepeatedTerm(t *testing.T) {
	ev := NewEvaluator(UnorderedMatcher{}, Options{})

	single := NewBuilder().Add("bar", zone("body", "d1"), At(4)).Build()
	_, ok := ev.Evaluate(nil, 3, NoScoreFilter, []string{"bar", "bar"}, single)
	assert.False(t, ok, "one occurrence cannot fill two slots")

	twice := NewBuilder().
		Add("bar", zone("body", "d1"), At(4)).
		Add("bar", zone("body", "d2"), At(4), At(6)).
		Build()
	res, ok := ev.Evaluate(nil, 2, NoScoreFilter, []string{"bar", "bar"}, twice)
	require.True(t, ok)
	assert.Equal(t, Result{DocumentID: "d2", Field: "body", Span: Span{Start: 4, End: 6}}, res)
}

func TestMatcherFor(t *testing.T) {
	assert.IsType(t, OrderedMatcher{}, MatcherFor(FunctionPhrase))
	assert.IsType(t, OrderedMatcher{}, MatcherFor(FunctionAdjacent))
	assert.IsType(t, OrderedMatcher{}, MatcherFor(FunctionScoredPhrase))
	assert.IsType(t, UnorderedMatcher{}, MatcherFor(FunctionWithin))
	assert.True(t, FunctionWithin.Valid())
	assert.False(t, Function("near").Valid())
}
