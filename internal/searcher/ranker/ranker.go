// Package ranker scores documents with BM25 plus a boost for satisfied
// proximity clauses.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
)

const (
	k1 = 1.2
	b  = 0.75

	// proximityWeight is the boost of a clause whose span is as tight as
	// its term count allows.
	proximityWeight = 2.0
)

type ScoredDoc struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Matches []Match `json:"matches,omitempty"`
}

// Match reports where one proximity clause was satisfied.
type Match struct {
	Clause int    `json:"clause"`
	Field  string `json:"field"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
}

// RankParams carries corpus-wide statistics. DocFreq counts documents per
// term across every shard.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	DocFreq      map[string]int
}

// Candidate is one document that survived filtering.
type Candidate struct {
	DocID     string
	DocLength int
	// TermFreq counts document-word occurrences per query term.
	TermFreq map[string]int
	Matches  []Match
	// ClauseTerms[i] is the term count of the clause Matches refer to.
	ClauseTerms map[int]int
}

// Rank scores candidates and returns the best limit of them, highest score
// first and ties broken by document id.
func Rank(candidates []Candidate, params RankParams, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(candidates))
	for _, c := range candidates {
		score := 0.0
		for term, tf := range c.TermFreq {
			if tf == 0 {
				continue
			}
			idf := computeIDF(params.TotalDocs, int64(params.DocFreq[term]))
			score += idf * computeTFNorm(float64(tf), float64(c.DocLength), params.AvgDocLength)
		}
		for _, m := range c.Matches {
			score += proximityBoost(m, c.ClauseTerms[m.Clause])
		}
		result = append(result, ScoredDoc{
			DocID:   c.DocID,
			Score:   math.Round(score*10000) / 10000,
			Matches: c.Matches,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// MatchFromResult converts an evaluator result for clause i.
func MatchFromResult(i int, r proximity.Result) Match {
	return Match{Clause: i, Field: r.Field, Start: r.Span.Start, End: r.Span.End}
}

// proximityBoost decays with the slack between the span width and the
// tightest possible width for terms.
func proximityBoost(m Match, terms int) float64 {
	width := float64(m.End - m.Start)
	tightest := float64(max(terms-1, 0))
	slack := math.Max(width-tightest, 0)
	return proximityWeight / (1 + slack)
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(math.Max(numerator, 0)/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
