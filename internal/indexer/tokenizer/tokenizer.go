// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and applies a simple suffix-based stemmer. A Tokenizer can
// additionally emit configured synonyms next to the words they replace.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single normalised term. Position counts kept words from zero.
// Synonym tokens standing for a run of several words sit at the run's last
// word, with LowPosition at its first and Skips = run length - 1.
type Token struct {
	Term        string
	Position    int
	LowPosition int
	Skips       int
	Score       int64
	Synonym     bool
}

// Tokenizer tokenises text and expands synonyms.
type Tokenizer struct {
	synonyms     map[string]string
	maxRun       int
	synonymScore int64
}

var plain = &Tokenizer{}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed. No synonyms are emitted.
func Tokenize(text string) []Token {
	return plain.Tokenize(text)
}

// New returns a Tokenizer that emits synonyms[phrase] wherever phrase occurs.
// Phrases and synonyms are normalised the same way as document text.
// Synonym tokens carry score.
func New(synonyms map[string]string, score int64) *Tokenizer {
	t := &Tokenizer{
		synonyms:     make(map[string]string, len(synonyms)),
		synonymScore: score,
	}
	for phrase, synonym := range synonyms {
		words := terms(phrase)
		target := terms(synonym)
		if len(words) == 0 || len(target) != 1 {
			continue
		}
		t.synonyms[strings.Join(words, " ")] = target[0]
		if len(words) > t.maxRun {
			t.maxRun = len(words)
		}
	}
	return t
}

// Tokenize returns the document tokens of text followed by any synonym
// tokens, ordered by position.
func (t *Tokenizer) Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words)/2+1)
	pos := 0
	for _, word := range words {
		term, ok := normalize(word)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{
			Term:        term,
			Position:    pos,
			LowPosition: pos,
		})
		pos++
	}
	if len(t.synonyms) == 0 {
		return tokens
	}
	expanded := append(tokens, t.expand(tokens)...)
	sort.SliceStable(expanded, func(i, j int) bool {
		return expanded[i].Position < expanded[j].Position
	})
	return expanded
}

// expand finds every configured phrase in tokens, longest first at each
// starting word.
func (t *Tokenizer) expand(tokens []Token) []Token {
	var out []Token
	for i := range tokens {
		for n := t.maxRun; n >= 1; n-- {
			if i+n > len(tokens) {
				continue
			}
			key := joinTerms(tokens[i : i+n])
			synonym, ok := t.synonyms[key]
			if !ok || (n == 1 && synonym == tokens[i].Term) {
				continue
			}
			last := tokens[i+n-1]
			out = append(out, Token{
				Term:        synonym,
				Position:    last.Position,
				LowPosition: tokens[i].Position,
				Skips:       n - 1,
				Score:       t.synonymScore,
				Synonym:     true,
			})
			break
		}
	}
	return out
}

func joinTerms(tokens []Token) string {
	if len(tokens) == 1 {
		return tokens[0].Term
	}
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Term
	}
	return strings.Join(parts, " ")
}

// terms normalises every word of s without synonym expansion.
func terms(s string) []string {
	toks := plain.Tokenize(s)
	out := make([]string, len(toks))
	for i, tok := range toks {
		out[i] = tok.Term
	}
	return out
}

// normalize stems word and reports false for stop-words and words too short
// to index.
func normalize(word string) (string, bool) {
	if len(word) < 2 {
		return "", false
	}
	if _, isStop := stopWords[word]; isStop {
		return "", false
	}
	stemmed := stem(word)
	return stemmed, stemmed != ""
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixes = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
