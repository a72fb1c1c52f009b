package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
)

// Document is the unit of indexing: an id and named text fields.
type Document struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Posting holds the positions of one term in one zone of one document.
type Posting struct {
	DocID     string               `json:"d"`
	Field     string               `json:"f"`
	Expansion bool                 `json:"x,omitempty"`
	Positions []proximity.Position `json:"p"`
}

// Zone returns the proximity zone this posting belongs to.
func (p Posting) Zone() proximity.ZoneKey {
	return proximity.ZoneKey{Field: p.Field, DocumentID: p.DocID, Expansion: p.Expansion}
}

// Frequency counts the positions that came from document words rather than
// synonym expansion.
func (p Posting) Frequency() int {
	n := 0
	for _, pos := range p.Positions {
		if !pos.HasScore {
			n++
		}
	}
	return n
}

type PostingList []Posting

// Sort orders postings by zone.
func (l PostingList) Sort() {
	sort.Slice(l, func(i, j int) bool { return l[i].Zone().Less(l[j].Zone()) })
}

// Documents returns the distinct document ids in l, ascending.
func (l PostingList) Documents() []string {
	seen := make(map[string]struct{}, len(l))
	docs := make([]string, 0, len(l))
	for _, p := range l {
		if _, ok := seen[p.DocID]; ok {
			continue
		}
		seen[p.DocID] = struct{}{}
		docs = append(docs, p.DocID)
	}
	sort.Strings(docs)
	return docs
}

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Snapshot is a point-in-time copy of a MemoryIndex, ready to be written as
// a segment.
type Snapshot struct {
	Terms      []TermEntry
	DocLengths map[string]int
}
