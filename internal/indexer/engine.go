// Package indexer owns one shard's index: an in-memory index for recent
// documents plus immutable on-disk segments, with lookups merging both.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
)

// Stats are corpus statistics used for ranking.
type Stats struct {
	TotalDocs    int64
	TotalLength  int64
	AvgDocLength float64
}

type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	readers  []*segment.Reader
	loaded   map[string]struct{}
	readerMu sync.RWMutex
	flushMu  sync.Mutex
	cfg      config.IndexerConfig
	logger   *slog.Logger

	// docLengths covers flushed segments; the memory index tracks its own.
	docLengths   map[string]int
	docLengthsMu sync.RWMutex
}

func NewEngine(cfg config.IndexerConfig, tok *tokenizer.Tokenizer) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex:   index.NewMemoryIndex(tok, cfg.ExpansionOnlyFields),
		writer:     segment.NewWriter(cfg.DataDir),
		loaded:     make(map[string]struct{}),
		cfg:        cfg,
		logger:     slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
		docLengths: make(map[string]int),
	}
	n, err := e.loadSegments()
	if err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", n)
	return e, nil
}

// IndexDocument adds doc to the memory index, flushing it to a segment once
// it exceeds the configured size.
func (e *Engine) IndexDocument(doc index.Document) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	length := e.memIndex.AddDocument(doc)
	e.logger.Debug("document indexed in memory",
		"doc_id", doc.ID,
		"fields", len(doc.Fields),
		"length", length,
		"mem_size", e.memIndex.Size(),
	)
	if e.cfg.SegmentMaxSize > 0 && e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// Flush writes the memory index to a new segment and resets it.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	snapshot := e.memIndex.Snapshot()
	if len(snapshot.Terms) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.addReader(segmentName, reader)
	e.memIndex.Reset()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
	)
	return nil
}

// Lookup returns every posting for the normalised term. When several
// sources hold the same zone the newest wins: memory, then the most
// recently written segment.
func (e *Engine) Lookup(term string) (index.PostingList, error) {
	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	var errs []error
	sources := []index.PostingList{e.memIndex.Lookup(term)}
	for i := len(readers) - 1; i >= 0; i-- {
		postings, err := readers[i].Lookup(term)
		if err != nil {
			e.logger.Error("segment lookup failed",
				"segment", readers[i].Name(),
				"term", term,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		sources = append(sources, postings)
	}
	result := mergeNewestFirst(sources)
	if len(result) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("looking up %q: %w", term, errors.Join(errs...))
	}
	return result, nil
}

func mergeNewestFirst(sources []index.PostingList) index.PostingList {
	var result index.PostingList
	seen := make(map[string]struct{})
	for _, src := range sources {
		for _, p := range src {
			key := p.DocID + "\x00" + p.Field
			if p.Expansion {
				key += "\x00x"
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, p)
		}
	}
	result.Sort()
	return result
}

// DocLength returns the length of docID in words, or 0 if unknown.
func (e *Engine) DocLength(docID string) int {
	if n, ok := e.memIndex.DocLength(docID); ok {
		return n
	}
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.docLengths[docID]
}

// Stats reports document counts and lengths across memory and segments.
func (e *Engine) Stats() Stats {
	snap := e.memIndex.Snapshot()
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()

	var s Stats
	for id, n := range e.docLengths {
		if _, inMemory := snap.DocLengths[id]; inMemory {
			continue
		}
		s.TotalDocs++
		s.TotalLength += int64(n)
	}
	for _, n := range snap.DocLengths {
		s.TotalDocs++
		s.TotalLength += int64(n)
	}
	if s.TotalDocs > 0 {
		s.AvgDocLength = float64(s.TotalLength) / float64(s.TotalDocs)
	}
	return s
}

// ReloadSegments opens segments written to the data directory by another
// process since the last load and returns how many were added.
func (e *Engine) ReloadSegments() int {
	n, err := e.loadSegments()
	if err != nil {
		e.logger.Error("segment reload failed", "error", err)
	}
	if n > 0 {
		e.logger.Info("segments reloaded", "new_segments", n)
	}
	return n
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	if e.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	flushErr := e.Flush()
	if flushErr != nil {
		e.logger.Error("final flush on close failed", "error", flushErr)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	var errs []error
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.readers = nil
	return errors.Join(append(errs, flushErr)...)
}

func (e *Engine) addReader(name string, reader *segment.Reader) {
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[name] = struct{}{}
	e.readerMu.Unlock()

	e.docLengthsMu.Lock()
	for id, n := range reader.DocLengths() {
		e.docLengths[id] = n
	}
	e.docLengthsMu.Unlock()
}

// loadSegments opens every segment in the data directory that is not yet
// loaded, oldest first.
func (e *Engine) loadSegments() (int, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	added := 0
	for _, name := range segFiles {
		e.readerMu.RLock()
		_, done := e.loaded[name]
		e.readerMu.RUnlock()
		if done {
			continue
		}
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.addReader(name, reader)
		added++
	}
	return added, nil
}
