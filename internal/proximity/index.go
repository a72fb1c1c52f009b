package proximity

import "sort"

// ZoneKey identifies the grouping positions are indexed under. Expansion is
// set for fields that are only indexed as members of the unfielded content
// pool.
type ZoneKey struct {
	Field      string `json:"field"`
	DocumentID string `json:"doc_id"`
	Expansion  bool   `json:"expansion,omitempty"`
}

// Less orders zone keys by field, document id and expansion flag.
func (z ZoneKey) Less(other ZoneKey) bool {
	if z.Field != other.Field {
		return z.Field < other.Field
	}
	if z.DocumentID != other.DocumentID {
		return z.DocumentID < other.DocumentID
	}
	return !z.Expansion && other.Expansion
}

// Occurrences holds every zone a term occurs in.
type Occurrences map[ZoneKey]*PositionList

// Total returns the number of positions across all zones.
func (o Occurrences) Total() int {
	total := 0
	for _, l := range o {
		total += l.Len()
	}
	return total
}

// Documents returns the set of documents with at least one position.
func (o Occurrences) Documents() map[string]struct{} {
	docs := make(map[string]struct{})
	for zone, l := range o {
		if l.Len() > 0 {
			docs[zone.DocumentID] = struct{}{}
		}
	}
	return docs
}

// PositionIndex maps each term to its occurrences. It is read-only once
// built; textually identical query terms resolve to the same Occurrences and
// therefore to the same PositionList values.
type PositionIndex struct {
	terms map[string]Occurrences
}

// Occurrences returns the occurrences of term, or nil.
func (x *PositionIndex) Occurrences(term string) Occurrences {
	if x == nil {
		return nil
	}
	return x.terms[term]
}

// CandidateDocuments returns, in ascending order, the documents in which
// every term occurs at least once. The intersection starts from the term
// with the fewest documents.
func (x *PositionIndex) CandidateDocuments(terms []string) []string {
	if x == nil || len(terms) == 0 {
		return nil
	}
	docSets := make([]map[string]struct{}, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		docs := x.Occurrences(term).Documents()
		if len(docs) == 0 {
			return nil
		}
		docSets = append(docSets, docs)
	}
	shortest := 0
	for i, docs := range docSets {
		if len(docs) < len(docSets[shortest]) {
			shortest = i
		}
	}
	candidates := make([]string, 0, len(docSets[shortest]))
	for docID := range docSets[shortest] {
		inAll := true
		for i, docs := range docSets {
			if i == shortest {
				continue
			}
			if _, ok := docs[docID]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			candidates = append(candidates, docID)
		}
	}
	sort.Strings(candidates)
	return candidates
}

// ByDocument splits x into one view per document in a single pass. Views
// share position lists with x.
func (x *PositionIndex) ByDocument() map[string]*PositionIndex {
	views := make(map[string]*PositionIndex)
	for term, occ := range x.terms {
		for zone, l := range occ {
			view, ok := views[zone.DocumentID]
			if !ok {
				view = &PositionIndex{terms: make(map[string]Occurrences)}
				views[zone.DocumentID] = view
			}
			sub, ok := view.terms[term]
			if !ok {
				sub = make(Occurrences)
				view.terms[term] = sub
			}
			sub[zone] = l
		}
	}
	return views
}

// fieldsOf returns the fields of docID that hold positions for term.
func (x *PositionIndex) fieldsOf(term, docID string, expansion bool) []string {
	var fields []string
	for zone, l := range x.Occurrences(term) {
		if zone.DocumentID == docID && zone.Expansion == expansion && l.Len() > 0 {
			fields = append(fields, zone.Field)
		}
	}
	return fields
}

// Builder accumulates positions into a PositionIndex.
type Builder struct {
	pending map[string]map[ZoneKey][]Position
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{pending: make(map[string]map[ZoneKey][]Position)}
}

// Add appends positions for term in zone.
func (b *Builder) Add(term string, zone ZoneKey, positions ...Position) *Builder {
	zones, ok := b.pending[term]
	if !ok {
		zones = make(map[ZoneKey][]Position)
		b.pending[term] = zones
	}
	zones[zone] = append(zones[zone], positions...)
	return b
}

// Build freezes the accumulated positions. Each (term, zone) pair becomes a
// single sorted PositionList.
func (b *Builder) Build() *PositionIndex {
	x := &PositionIndex{terms: make(map[string]Occurrences, len(b.pending))}
	for term, zones := range b.pending {
		occ := make(Occurrences, len(zones))
		for zone, ps := range zones {
			occ[zone] = NewPositionList(ps...)
		}
		x.terms[term] = occ
	}
	return x
}
