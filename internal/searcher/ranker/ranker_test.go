package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
)

func TestRankPrefersRareTermsAndTightSpans(t *testing.T) {
	params := RankParams{
		TotalDocs:    10,
		AvgDocLength: 10,
		DocFreq:      map[string]int{"fox": 2, "dog": 8},
	}
	candidates := []Candidate{
		{DocID: "common", DocLength: 10, TermFreq: map[string]int{"dog": 1}},
		{DocID: "rare", DocLength: 10, TermFreq: map[string]int{"fox": 1}},
		{
			DocID: "phrase", DocLength: 10,
			TermFreq:    map[string]int{"fox": 1},
			Matches:     []Match{{Clause: 0, Field: "body", Start: 3, End: 4}},
			ClauseTerms: map[int]int{0: 2},
		},
	}

	ranked := Rank(candidates, params, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"phrase", "rare", "common"}, []string{ranked[0].DocID, ranked[1].DocID, ranked[2].DocID})
	assert.InDelta(t, ranked[1].Score+proximityWeight, ranked[0].Score, 0.001)
}

func TestRankLimitAndTies(t *testing.T) {
	params := RankParams{TotalDocs: 4, AvgDocLength: 5, DocFreq: map[string]int{"a": 2}}
	candidates := []Candidate{
		{DocID: "d2", DocLength: 5, TermFreq: map[string]int{"a": 1}},
		{DocID: "d1", DocLength: 5, TermFreq: map[string]int{"a": 1}},
	}
	ranked := Rank(candidates, params, 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, "d1", ranked[0].DocID)
}

func TestProximityBoostDecays(t *testing.T) {
	tight := proximityBoost(Match{Start: 0, End: 2}, 3)
	loose := proximityBoost(Match{Start: 0, End: 6}, 3)
	assert.Equal(t, proximityWeight, tight)
	assert.InDelta(t, proximityWeight/5, loose, 1e-9)
}

func TestMatchFromResult(t *testing.T) {
	m := MatchFromResult(2, proximity.Result{DocumentID: "d", Field: "title", Span: proximity.Span{Start: 4, End: 7}})
	assert.Equal(t, Match{Clause: 2, Field: "title", Start: 4, End: 7}, m)
}

func TestIDFNeverNegative(t *testing.T) {
	assert.GreaterOrEqual(t, computeIDF(3, 5), 0.0)
	assert.False(t, math.IsNaN(computeIDF(0, 0)))
	assert.Zero(t, computeTFNorm(1, 10, 0))
}
