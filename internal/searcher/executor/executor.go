// Package executor runs query plans against the index shards: it gathers
// postings, evaluates proximity clauses per candidate document and ranks the
// survivors.
package executor

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

type SearchResult struct {
	Query         string                   `json:"query"`
	TotalHits     int                      `json:"total_hits"`
	Results       []ranker.ScoredDoc       `json:"results"`
	Clauses       []parser.ProximityClause `json:"clauses,omitempty"`
	TermStats     map[string]int           `json:"term_stats"`
	ShardsQueried int                      `json:"shards_queried"`
}

type Options struct {
	MaxConcurrentEvaluations int
	TimeoutPerShard          time.Duration
	MaxPositionsPerTerm      int
	// DefaultMaxScore replaces proximity.NoScoreFilter on clauses that set
	// no score limit.
	DefaultMaxScore float32
}

type Executor struct {
	shards     []Shard
	opts       Options
	evaluators map[proximity.Function]*proximity.Evaluator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns an Executor over shards. m may be nil.
func New(shards []Shard, opts Options, m *metrics.Metrics) *Executor {
	if opts.MaxConcurrentEvaluations <= 0 {
		opts.MaxConcurrentEvaluations = 1
	}
	if opts.DefaultMaxScore == 0 {
		opts.DefaultMaxScore = proximity.NoScoreFilter
	}
	evOpts := proximity.Options{MaxPositionsPerTerm: opts.MaxPositionsPerTerm}
	evaluators := make(map[proximity.Function]*proximity.Evaluator)
	for _, f := range []proximity.Function{
		proximity.FunctionPhrase,
		proximity.FunctionAdjacent,
		proximity.FunctionScoredPhrase,
		proximity.FunctionWithin,
	} {
		evaluators[f] = proximity.NewEvaluator(proximity.MatcherFor(f), evOpts)
	}
	return &Executor{
		shards:     shards,
		opts:       opts,
		evaluators: evaluators,
		metrics:    m,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// task is one candidate document of one shard.
type task struct {
	shard   int
	docID   string
	view    *proximity.PositionIndex
	// bare is set when the document holds a bare query term.
	bare    bool
	matched bool
	matches []ranker.Match
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Query:     plan.RawQuery,
		Results:   []ranker.ScoredDoc{},
		Clauses:   plan.Clauses,
		TermStats: map[string]int{},
	}
	for _, c := range plan.Clauses {
		if !c.Function.Valid() {
			return nil, apperrors.Newf(apperrors.ErrUnknownFunction, http.StatusBadRequest, "unknown function %q", c.Function)
		}
	}
	if plan.Empty() {
		return result, nil
	}

	lookups, err := e.fanOut(ctx, queryTerms(plan))
	if err != nil {
		return nil, err
	}
	result.ShardsQueried = len(lookups)
	params := globalParams(lookups)
	for term, df := range params.DocFreq {
		result.TermStats[term] = df
	}

	var tasks []*task
	for si, l := range lookups {
		tasks = append(tasks, e.candidates(plan, si, l)...)
	}
	if err := e.evaluate(ctx, plan, tasks); err != nil {
		return nil, err
	}

	positive := plan.PositiveTerms()
	clauseTerms := clauseTermCounts(plan)
	freqs := make([]map[string]map[string]int, len(lookups))
	perShard := make([][]ranker.Candidate, len(lookups))
	for _, t := range tasks {
		if !t.matched {
			continue
		}
		l := lookups[t.shard]
		if freqs[t.shard] == nil {
			freqs[t.shard] = termFreqs(l, positive)
		}
		perShard[t.shard] = append(perShard[t.shard], ranker.Candidate{
			DocID:       t.docID,
			DocLength:   l.shard.DocLength(t.docID),
			TermFreq:    freqs[t.shard][t.docID],
			Matches:     t.matches,
			ClauseTerms: clauseTerms,
		})
		result.TotalHits++
	}
	ranked := make([][]ranker.ScoredDoc, len(perShard))
	for i, cands := range perShard {
		ranked[i] = ranker.Rank(cands, params, limit)
	}
	result.Results = merger.Merge(ranked, limit)

	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(len(result.Results)))
	}
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"clauses", len(plan.Clauses),
		"shards_queried", len(lookups),
		"candidates", len(tasks),
		"hits", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// candidates selects the documents of one shard that may satisfy plan,
// minus excluded terms. Under AND that is the bare-term intersection
// narrowed by the candidate documents of every positive clause; under OR
// the union of both.
func (e *Executor) candidates(plan *parser.QueryPlan, si int, l shardLookup) []*task {
	b := proximity.NewBuilder()
	for _, c := range plan.Clauses {
		for _, term := range c.Terms {
			for _, p := range l.postings[term] {
				b.Add(term, p.Zone(), p.Positions...)
			}
		}
	}
	idx := b.Build()

	or := plan.Type == parser.QueryOR
	var docs map[string]struct{}
	if len(plan.Terms) > 0 {
		docs = l.docSet(plan.Terms[0])
		for _, term := range plan.Terms[1:] {
			other := l.docSet(term)
			if or {
				for d := range other {
					docs[d] = struct{}{}
				}
				continue
			}
			for d := range docs {
				if _, ok := other[d]; !ok {
					delete(docs, d)
				}
			}
		}
	}
	bare := make(map[string]struct{}, len(docs))
	for d := range docs {
		bare[d] = struct{}{}
	}
	for _, c := range plan.Clauses {
		if c.Negated {
			continue
		}
		clauseDocs := idx.CandidateDocuments(c.Terms)
		if e.metrics != nil {
			e.metrics.ProximityCandidates.Observe(float64(len(clauseDocs)))
		}
		if or {
			if docs == nil {
				docs = make(map[string]struct{}, len(clauseDocs))
			}
			for _, d := range clauseDocs {
				docs[d] = struct{}{}
			}
			continue
		}
		if docs == nil {
			docs = make(map[string]struct{}, len(clauseDocs))
			for _, d := range clauseDocs {
				docs[d] = struct{}{}
			}
			continue
		}
		keep := make(map[string]struct{}, len(clauseDocs))
		for _, d := range clauseDocs {
			if _, ok := docs[d]; ok {
				keep[d] = struct{}{}
			}
		}
		docs = keep
	}
	for _, term := range plan.ExcludeTerms {
		for d := range l.docSet(term) {
			delete(docs, d)
		}
	}

	ids := make([]string, 0, len(docs))
	for d := range docs {
		ids = append(ids, d)
	}
	sort.Strings(ids)
	views := idx.ByDocument()
	tasks := make([]*task, len(ids))
	for i, d := range ids {
		_, hasBare := bare[d]
		tasks[i] = &task{shard: si, docID: d, view: views[d], bare: hasBare}
	}
	return tasks
}

// evaluate checks every task against every clause on a bounded pool.
func (e *Executor) evaluate(ctx context.Context, plan *parser.QueryPlan, tasks []*task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrentEvaluations)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t.matched, t.matches = e.evaluateDocument(plan, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "search cancelled during evaluation")
	}
	return nil
}

// evaluateDocument reports whether t's document satisfies plan, with the
// spans of the positive clauses it matched. No negated clause may match.
// Under AND every positive clause must match; under OR one positive clause
// or a bare term suffices.
func (e *Executor) evaluateDocument(plan *parser.QueryPlan, t *task) (bool, []ranker.Match) {
	or := plan.Type == parser.QueryOR
	view := t.view
	var matches []ranker.Match
	for i, c := range plan.Clauses {
		maxScore := c.MaxScore
		if maxScore == proximity.NoScoreFilter {
			maxScore = e.opts.DefaultMaxScore
		}
		start := time.Now()
		res, ok := e.evaluators[c.Function].Evaluate(c.FieldSet(), c.Distance, maxScore, c.Terms, view)
		e.metrics.ObserveProximity(string(c.Function), ok, time.Since(start))
		if e.metrics != nil && maxScore != proximity.NoScoreFilter {
			e.metrics.PositionsFilteredTotal.Add(float64(filteredPositions(view, c.Terms, maxScore)))
		}
		switch {
		case c.Negated && ok:
			return false, nil
		case c.Negated:
		case ok:
			matches = append(matches, ranker.MatchFromResult(i, res))
		case !or:
			return false, nil
		}
	}
	if or {
		return t.bare || len(matches) > 0, matches
	}
	return true, matches
}

// filteredPositions counts positions of terms in view the score filter
// drops.
func filteredPositions(view *proximity.PositionIndex, terms []string, maxScore float32) int {
	n := 0
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		for _, l := range view.Occurrences(term) {
			n += l.DroppedByScore(maxScore)
		}
	}
	return n
}

// queryTerms lists every distinct term the plan needs looked up.
func queryTerms(plan *parser.QueryPlan) []string {
	seen := make(map[string]struct{})
	var terms []string
	add := func(ts []string) {
		for _, t := range ts {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	add(plan.Terms)
	add(plan.ExcludeTerms)
	for _, c := range plan.Clauses {
		add(c.Terms)
	}
	return terms
}

func globalParams(lookups []shardLookup) ranker.RankParams {
	params := ranker.RankParams{DocFreq: make(map[string]int)}
	var totalLength int64
	for _, l := range lookups {
		params.TotalDocs += l.stats.TotalDocs
		totalLength += l.stats.TotalLength
		for term, postings := range l.postings {
			params.DocFreq[term] += len(postings.Documents())
		}
	}
	if params.TotalDocs > 0 {
		params.AvgDocLength = float64(totalLength) / float64(params.TotalDocs)
	}
	return params
}

// termFreqs maps document -> term -> document-word occurrences.
func termFreqs(l shardLookup, terms []string) map[string]map[string]int {
	tf := make(map[string]map[string]int)
	for _, term := range terms {
		for _, p := range l.postings[term] {
			doc, ok := tf[p.DocID]
			if !ok {
				doc = make(map[string]int, len(terms))
				tf[p.DocID] = doc
			}
			doc[term] += p.Frequency()
		}
	}
	return tf
}

func clauseTermCounts(plan *parser.QueryPlan) map[int]int {
	counts := make(map[int]int, len(plan.Clauses))
	for i, c := range plan.Clauses {
		counts[i] = len(c.Terms)
	}
	return counts
}
