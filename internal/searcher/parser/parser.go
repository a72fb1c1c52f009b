// Package parser turns a query string into a QueryPlan.
//
// Syntax:
//
//	quick brown          bare terms, combined with AND (default) or OR
//	NOT fox              excludes documents holding fox
//	"quick brown fox"    phrase: terms in order, distance n-1
//	"quick fox"~2        phrase with slop 2: distance n-1+2
//	"new york"^60        scored phrase: synonym positions scored above 60 are ignored
//	WITHIN/5(fox dog)    terms in any order within a span of 5
//	title:"quick fox"    restrict a phrase or WITHIN clause to fields (title,body:...)
//
// Terms are normalised with the indexing tokenizer so they line up with
// the postings.
package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
)

const (
	maxClauseTerms = 32
	maxDistance    = 1 << 20
	withinPrefix   = "WITHIN/"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// ProximityClause is one phrase or within constraint. A document satisfies
// it when some field (restricted to Fields when set) holds Terms within
// Distance.
type ProximityClause struct {
	Function proximity.Function `json:"function"`
	Terms    []string           `json:"terms"`
	Distance int                `json:"distance"`
	Fields   []string           `json:"fields,omitempty"`
	MaxScore float32            `json:"max_score"`
	Negated  bool               `json:"negated,omitempty"`
}

// FieldSet returns Fields as a set, or nil when unrestricted.
func (c ProximityClause) FieldSet() map[string]struct{} {
	if len(c.Fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		set[f] = struct{}{}
	}
	return set
}

func (c ProximityClause) String() string {
	fields := append([]string(nil), c.Fields...)
	sort.Strings(fields)
	s := fmt.Sprintf("%s/%d(%s)", c.Function, c.Distance, strings.Join(c.Terms, " "))
	if len(fields) > 0 {
		s = strings.Join(fields, ",") + ":" + s
	}
	if c.MaxScore != proximity.NoScoreFilter {
		s += "^" + strconv.FormatFloat(float64(c.MaxScore), 'g', -1, 32)
	}
	if c.Negated {
		s = "NOT " + s
	}
	return s
}

type QueryPlan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	Clauses      []ProximityClause
	RawQuery     string
}

// Empty reports whether the plan has nothing that can select a document.
func (p *QueryPlan) Empty() bool {
	if len(p.Terms) > 0 {
		return false
	}
	for _, c := range p.Clauses {
		if !c.Negated {
			return false
		}
	}
	return true
}

// PositiveTerms returns the distinct terms that contribute to ranking.
func (p *QueryPlan) PositiveTerms() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range p.Terms {
		add(t)
	}
	for _, c := range p.Clauses {
		if !c.Negated {
			for _, t := range c.Terms {
				add(t)
			}
		}
	}
	return out
}

// Canonical renders the plan independent of word order and spacing, for
// use as a cache key.
func (p *QueryPlan) Canonical() string {
	terms := append([]string(nil), p.Terms...)
	excludes := append([]string(nil), p.ExcludeTerms...)
	sort.Strings(terms)
	sort.Strings(excludes)
	clauses := make([]string, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		clauses = append(clauses, c.String())
	}
	sort.Strings(clauses)
	parts := []string{p.Type.String(), strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	if len(clauses) > 0 {
		parts = append(parts, strings.Join(clauses, ";"))
	}
	return strings.Join(parts, "|")
}

// Parse parses query. Malformed clauses are reported as ErrInvalidQuery.
func Parse(query string) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	s := &scanner{src: []rune(query)}
	excludeNext := false
	for {
		s.skipSpace()
		if s.done() {
			break
		}
		var (
			clause *ProximityClause
			err    error
		)
		if s.peek() == '"' {
			clause, err = s.phrase(nil)
		} else {
			word := s.word()
			switch strings.ToUpper(word) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			case "NOT":
				excludeNext = true
				continue
			}
			fields, rest, prefixed := splitFieldPrefix(word)
			switch {
			case prefixed && rest == "" && s.peek() == '"':
				clause, err = s.phrase(fields)
			case prefixed && rest == "":
				err = apperrors.Invalid("field prefix %q must be followed by a phrase or WITHIN clause", word)
			case strings.HasPrefix(strings.ToUpper(rest), withinPrefix) && s.peek() == '(':
				clause, err = s.within(rest, fields)
			default:
				for _, tok := range tokenizer.Tokenize(word) {
					if excludeNext {
						plan.ExcludeTerms = append(plan.ExcludeTerms, tok.Term)
					} else {
						plan.Terms = append(plan.Terms, tok.Term)
					}
				}
				excludeNext = false
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		plan.addClause(clause, excludeNext)
		excludeNext = false
	}
	return plan, nil
}

// addClause records c. Clauses that normalise to a single term degrade to a
// bare term.
func (p *QueryPlan) addClause(c *ProximityClause, negated bool) {
	switch len(c.Terms) {
	case 0:
		return
	case 1:
		if negated {
			p.ExcludeTerms = append(p.ExcludeTerms, c.Terms[0])
		} else {
			p.Terms = append(p.Terms, c.Terms[0])
		}
		return
	}
	c.Negated = negated
	p.Clauses = append(p.Clauses, *c)
}

// ClausePlan wraps a single already-normalised clause in a plan.
func ClausePlan(c ProximityClause) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
	}
	plan.addClause(&c, false)
	plan.RawQuery = c.String()
	return plan
}

// NormalizeTerms normalises each caller-supplied term and reports terms that
// do not reduce to exactly one indexed term.
func NormalizeTerms(raw []string) ([]string, error) {
	terms := make([]string, 0, len(raw))
	for _, r := range raw {
		toks := tokenizer.Tokenize(r)
		if len(toks) != 1 {
			return nil, apperrors.Invalid("term %q does not normalise to a single indexed term", r)
		}
		terms = append(terms, toks[0].Term)
	}
	if len(terms) > maxClauseTerms {
		return nil, apperrors.Invalid("at most %d terms per clause", maxClauseTerms)
	}
	return terms, nil
}

func splitFieldPrefix(word string) (fields []string, rest string, ok bool) {
	i := strings.IndexByte(word, ':')
	if i <= 0 {
		return nil, word, false
	}
	rest = word[i+1:]
	if rest != "" && !strings.HasPrefix(strings.ToUpper(rest), withinPrefix) {
		return nil, word, false
	}
	for _, f := range strings.Split(word[:i], ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields, rest, len(fields) > 0
}

type scanner struct {
	src []rune
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() rune {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) skipSpace() {
	for !s.done() && unicode.IsSpace(s.src[s.pos]) {
		s.pos++
	}
}

// word reads up to whitespace, a quote or an opening parenthesis.
func (s *scanner) word() string {
	start := s.pos
	for !s.done() {
		r := s.src[s.pos]
		if unicode.IsSpace(r) || r == '"' || r == '(' {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// Lone '(' or similar.
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func (s *scanner) until(close rune) (string, bool) {
	start := s.pos
	for !s.done() {
		if s.src[s.pos] == close {
			text := string(s.src[start:s.pos])
			s.pos++
			return text, true
		}
		s.pos++
	}
	return "", false
}

func (s *scanner) number() (int, bool) {
	start := s.pos
	for !s.done() && unicode.IsDigit(s.src[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		return 0, false
	}
	n, err := strconv.Atoi(string(s.src[start:s.pos]))
	if err != nil || n > maxDistance {
		return 0, false
	}
	return n, true
}

// phrase parses "text" with optional ~slop and ^maxscore suffixes.
func (s *scanner) phrase(fields []string) (*ProximityClause, error) {
	s.pos++
	text, ok := s.until('"')
	if !ok {
		return nil, apperrors.Invalid("unterminated phrase")
	}
	terms, err := clauseTerms(text)
	if err != nil {
		return nil, err
	}
	c := &ProximityClause{
		Function: proximity.FunctionPhrase,
		Terms:    terms,
		Distance: max(len(terms)-1, 0),
		Fields:   fields,
		MaxScore: proximity.NoScoreFilter,
	}
	for !s.done() {
		switch s.peek() {
		case '~':
			s.pos++
			slop, ok := s.number()
			if !ok {
				return nil, apperrors.Invalid("phrase slop must be a number up to %d", maxDistance)
			}
			c.Distance += slop
			continue
		case '^':
			s.pos++
			score, ok := s.number()
			if !ok {
				return nil, apperrors.Invalid("phrase max score must be a number")
			}
			c.Function = proximity.FunctionScoredPhrase
			c.MaxScore = float32(score)
			continue
		}
		break
	}
	return c, nil
}

// within parses WITHIN/k(terms); head is the already consumed WITHIN/k.
func (s *scanner) within(head string, fields []string) (*ProximityClause, error) {
	k, err := strconv.Atoi(head[len(withinPrefix):])
	if err != nil || k < 0 || k > maxDistance {
		return nil, apperrors.Invalid("invalid WITHIN distance in %q", head)
	}
	s.pos++
	text, ok := s.until(')')
	if !ok {
		return nil, apperrors.Invalid("unterminated WITHIN clause")
	}
	terms, err := clauseTerms(text)
	if err != nil {
		return nil, err
	}
	return &ProximityClause{
		Function: proximity.FunctionWithin,
		Terms:    terms,
		Distance: k,
		Fields:   fields,
		MaxScore: proximity.NoScoreFilter,
	}, nil
}

func clauseTerms(text string) ([]string, error) {
	toks := tokenizer.Tokenize(text)
	if len(toks) > maxClauseTerms {
		return nil, apperrors.Invalid("at most %d terms per clause", maxClauseTerms)
	}
	terms := make([]string, len(toks))
	for i, t := range toks {
		terms[i] = t.Term
	}
	return terms, nil
}
