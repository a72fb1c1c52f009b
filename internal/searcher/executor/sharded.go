package executor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
)

// Shard is the read side of one index shard.
type Shard interface {
	Lookup(term string) (index.PostingList, error)
	DocLength(docID string) int
	Stats() indexer.Stats
}

// Shards adapts engines, indexed by shard id.
func Shards(engines []*indexer.Engine) []Shard {
	out := make([]Shard, len(engines))
	for i, e := range engines {
		out[i] = e
	}
	return out
}

// shardLookup holds one shard's postings for every query term.
type shardLookup struct {
	id       int
	shard    Shard
	postings map[string]index.PostingList
	stats    indexer.Stats
	err      error
}

// fanOut looks terms up on every shard concurrently. Failed shards are
// logged and left out; it fails only when no shard answered.
func (e *Executor) fanOut(ctx context.Context, terms []string) ([]shardLookup, error) {
	lookups := make([]shardLookup, len(e.shards))
	var g errgroup.Group
	for i, s := range e.shards {
		i, s := i, s
		g.Go(func() error {
			lookups[i] = e.lookupShard(ctx, i, s, terms)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "search cancelled during shard lookup")
	}
	ok := make([]shardLookup, 0, len(lookups))
	for _, l := range lookups {
		if l.err != nil {
			e.logger.Error("shard query failed", "shard_id", l.id, "error", l.err)
			continue
		}
		ok = append(ok, l)
	}
	if len(ok) == 0 && len(e.shards) > 0 {
		return nil, apperrors.Newf(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable,
			"all %d shards failed", len(e.shards))
	}
	return ok, nil
}

func (e *Executor) lookupShard(ctx context.Context, id int, s Shard, terms []string) shardLookup {
	if e.opts.TimeoutPerShard > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TimeoutPerShard)
		defer cancel()
	}
	start := time.Now()
	l := shardLookup{
		id:       id,
		shard:    s,
		postings: make(map[string]index.PostingList, len(terms)),
		stats:    s.Stats(),
	}
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			l.err = fmt.Errorf("shard %d after %s: %w", id, time.Since(start).Round(time.Millisecond), err)
			return l
		}
		postings, err := s.Lookup(term)
		if err != nil {
			l.err = fmt.Errorf("shard %d, term %q: %w", id, term, err)
			return l
		}
		if len(postings) > 0 {
			l.postings[term] = postings
		}
	}
	return l
}

// docSet returns the documents holding term on this shard.
func (l shardLookup) docSet(term string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range l.postings[term] {
		set[p.DocID] = struct{}{}
	}
	return set
}
