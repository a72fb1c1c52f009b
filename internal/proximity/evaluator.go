package proximity

import (
	"log/slog"
	"sort"
)

// Matcher decides whether one field of one document satisfies a proximity
// constraint. positions[i] holds the positions of terms[i], sorted by offset.
// Implementations must not modify positions.
type Matcher interface {
	Match(terms []string, positions [][]Position, distance int) (Span, bool)
}

// Function names a proximity query function.
type Function string

const (
	FunctionPhrase       Function = "phrase"
	FunctionAdjacent     Function = "adjacent"
	FunctionScoredPhrase Function = "scoredphrase"
	FunctionWithin       Function = "within"
)

// Ordered reports whether f requires terms in query order.
func (f Function) Ordered() bool {
	return f != FunctionWithin
}

// Valid reports whether f is a known function.
func (f Function) Valid() bool {
	switch f {
	case FunctionPhrase, FunctionAdjacent, FunctionScoredPhrase, FunctionWithin:
		return true
	}
	return false
}

// MatcherFor returns the matcher implementing f.
func MatcherFor(f Function) Matcher {
	if f.Ordered() {
		return OrderedMatcher{}
	}
	return UnorderedMatcher{}
}

// Result identifies where a match was found.
type Result struct {
	DocumentID string `json:"doc_id"`
	Field      string `json:"field"`
	Span       Span   `json:"span"`
}

// Options tunes an Evaluator.
type Options struct {
	// MaxPositionsPerTerm rejects fields where a single term has more
	// positions than this. Zero means no limit.
	MaxPositionsPerTerm int
}

// Evaluator selects candidate documents and fields and hands each one to a
// Matcher. It holds no per-evaluation state and is safe for concurrent use.
type Evaluator struct {
	matcher Matcher
	opts    Options
	logger  *slog.Logger
}

func NewEvaluator(matcher Matcher, opts Options) *Evaluator {
	return &Evaluator{
		matcher: matcher,
		opts:    opts,
		logger:  slog.Default().With("component", "proximity-evaluator"),
	}
}

// Evaluate returns the first document/field of idx in which terms satisfy the
// matcher's constraint within distance. fields, when non-nil, restricts the
// fields examined and enables the expansion-zone fallback for them. Invalid
// input is reported as no match.
func (e *Evaluator) Evaluate(fields map[string]struct{}, distance int, maxScore float32, terms []string, idx *PositionIndex) (Result, bool) {
	if distance < 0 || len(terms) < 2 || idx == nil {
		return Result{}, false
	}
	for _, term := range terms {
		if idx.Occurrences(term).Total() == 0 {
			return Result{}, false
		}
	}
	docs := idx.CandidateDocuments(terms)
	if len(docs) == 0 {
		return Result{}, false
	}
	for _, docID := range docs {
		for _, field := range e.candidateFields(fields, terms, docID, idx) {
			lists, ok := e.fieldPositions(fields, field, docID, maxScore, terms, idx)
			if !ok {
				continue
			}
			span, ok := e.matcher.Match(terms, lists, distance)
			if !ok {
				continue
			}
			e.logger.Debug("proximity match",
				"doc_id", docID,
				"field", field,
				"terms", terms,
				"distance", distance,
				"start", span.Start,
				"end", span.End,
			)
			return Result{DocumentID: docID, Field: field, Span: span}, true
		}
	}
	return Result{}, false
}

// candidateFields lists, in ascending order, the fields of docID worth
// examining: every real field holding the first term, plus the requested
// fields when a restriction is given.
func (e *Evaluator) candidateFields(fields map[string]struct{}, terms []string, docID string, idx *PositionIndex) []string {
	set := make(map[string]struct{})
	if fields == nil {
		for _, f := range idx.fieldsOf(terms[0], docID, false) {
			set[f] = struct{}{}
		}
	} else {
		for _, f := range idx.fieldsOf(terms[0], docID, false) {
			if _, ok := fields[f]; ok {
				set[f] = struct{}{}
			}
		}
		for _, f := range idx.fieldsOf(terms[0], docID, true) {
			if _, ok := fields[f]; ok {
				set[f] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// fieldPositions builds the per-term lists for one field, applying the
// expansion-zone fallback and the score filter. It reports false when the
// field cannot possibly satisfy every term.
func (e *Evaluator) fieldPositions(fields map[string]struct{}, field, docID string, maxScore float32, terms []string, idx *PositionIndex) ([][]Position, bool) {
	_, requested := fields[field]
	lists := make([][]Position, len(terms))
	total := 0
	for i, term := range terms {
		occ := idx.Occurrences(term)
		list := occ[ZoneKey{Field: field, DocumentID: docID}]
		if list.Len() == 0 && requested {
			list = occ[ZoneKey{Field: field, DocumentID: docID, Expansion: true}]
		}
		if list.Len() == 0 {
			return nil, false
		}
		if e.opts.MaxPositionsPerTerm > 0 && list.Len() > e.opts.MaxPositionsPerTerm {
			e.logger.Warn("position list exceeds limit, skipping field",
				"doc_id", docID,
				"field", field,
				"term", term,
				"positions", list.Len(),
				"limit", e.opts.MaxPositionsPerTerm,
			)
			return nil, false
		}
		ps := FilterByScore(list.view(), maxScore)
		if len(ps) == 0 {
			return nil, false
		}
		lists[i] = ps
		total += len(ps)
	}
	if total < len(terms) {
		return nil, false
	}
	return lists, true
}
