package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
)

type zoneKey struct {
	docID     string
	field     string
	expansion bool
}

// MemoryIndex is the mutable in-memory part of an engine: term -> zone ->
// positions. Fields named in expansionOnly are indexed only into their
// expansion zone.
type MemoryIndex struct {
	mu            sync.RWMutex
	tokenizer     *tokenizer.Tokenizer
	expansionOnly map[string]struct{}
	index         map[string]map[zoneKey][]proximity.Position
	docTerms      map[string][]string
	docLengths    map[string]int
	size          int64
}

func NewMemoryIndex(tok *tokenizer.Tokenizer, expansionOnlyFields []string) *MemoryIndex {
	if tok == nil {
		tok = tokenizer.New(nil, 0)
	}
	exp := make(map[string]struct{}, len(expansionOnlyFields))
	for _, f := range expansionOnlyFields {
		exp[f] = struct{}{}
	}
	return &MemoryIndex{
		tokenizer:     tok,
		expansionOnly: exp,
		index:         make(map[string]map[zoneKey][]proximity.Position),
		docTerms:      make(map[string][]string),
		docLengths:    make(map[string]int),
	}
}

// AddDocument tokenises every field of doc and replaces any earlier version
// of it. It returns the document length in words.
func (m *MemoryIndex) AddDocument(doc Document) int {
	fields := make([]string, 0, len(doc.Fields))
	for f := range doc.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	termData := make(map[string]map[zoneKey][]proximity.Position)
	length := 0
	for _, field := range fields {
		_, expansion := m.expansionOnly[field]
		zone := zoneKey{docID: doc.ID, field: field, expansion: expansion}
		for _, tok := range m.tokenizer.Tokenize(doc.Fields[field]) {
			pos := proximity.Position{
				Offset:    int64(tok.Position),
				LowOffset: int64(tok.LowPosition),
				Skips:     uint32(tok.Skips),
			}
			if tok.Synonym {
				pos = pos.Scored(tok.Score)
			} else {
				length++
			}
			zones, ok := termData[tok.Term]
			if !ok {
				zones = make(map[zoneKey][]proximity.Position)
				termData[tok.Term] = zones
			}
			zones[zone] = append(zones[zone], pos)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(doc.ID)
	terms := make([]string, 0, len(termData))
	for term, zones := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[zoneKey][]proximity.Position)
		}
		for zone, positions := range zones {
			m.index[term][zone] = positions
			m.size += int64(len(term) + len(doc.ID) + len(zone.field) + len(positions)*40 + 64)
		}
		terms = append(terms, term)
	}
	m.docTerms[doc.ID] = terms
	m.docLengths[doc.ID] = length
	return length
}

func (m *MemoryIndex) removeLocked(docID string) {
	for _, term := range m.docTerms[docID] {
		for zone := range m.index[term] {
			if zone.docID == docID {
				delete(m.index[term], zone)
			}
		}
		if len(m.index[term]) == 0 {
			delete(m.index, term)
		}
	}
	delete(m.docTerms, docID)
	delete(m.docLengths, docID)
}

// Lookup returns the postings of term ordered by zone.
func (m *MemoryIndex) Lookup(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return postingsOf(m.index[term])
}

func postingsOf(zones map[zoneKey][]proximity.Position) PostingList {
	if len(zones) == 0 {
		return nil
	}
	result := make(PostingList, 0, len(zones))
	for zone, positions := range zones {
		result = append(result, Posting{
			DocID:     zone.docID,
			Field:     zone.field,
			Expansion: zone.expansion,
			Positions: positions,
		})
	}
	result.Sort()
	return result
}

// Snapshot copies out every term and document length, sorted by term.
func (m *MemoryIndex) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, zones := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postingsOf(zones),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	lengths := make(map[string]int, len(m.docLengths))
	for id, n := range m.docLengths {
		lengths[id] = n
	}
	return Snapshot{Terms: entries, DocLengths: lengths}
}

// DocLength returns the indexed length of docID and whether it is present.
func (m *MemoryIndex) DocLength(docID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.docLengths[docID]
	return n, ok
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docLengths)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[zoneKey][]proximity.Position)
	m.docTerms = make(map[string][]string)
	m.docLengths = make(map[string]int)
	m.size = 0
}
