package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/config"
)

var benchWords = []string{"quick", "brown", "fox", "lazy", "dog", "search", "shard", "index", "query", "rank"}

func benchShards(b *testing.B, shards, docsPerShard int) []Shard {
	b.Helper()
	engines := make([]*indexer.Engine, shards)
	for s := range engines {
		e, err := indexer.NewEngine(config.IndexerConfig{DataDir: b.TempDir(), SegmentMaxSize: 1 << 30}, nil)
		if err != nil {
			b.Fatal(err)
		}
		b.Cleanup(func() { _ = e.Close() })
		for d := 0; d < docsPerShard; d++ {
			text := ""
			for w := 0; w < 40; w++ {
				text += benchWords[(d*7+w*3+s)%len(benchWords)] + " "
			}
			if err := e.IndexDocument(index.Document{ID: fmt.Sprintf("s%d-d%d", s, d), Fields: map[string]string{"body": text}}); err != nil {
				b.Fatal(err)
			}
		}
		engines[s] = e
	}
	return Shards(engines)
}

func BenchmarkExecute(b *testing.B) {
	ex := New(benchShards(b, 4, 500), Options{MaxConcurrentEvaluations: 8}, nil)
	queries := []string{
		`quick fox`,
		`"brown fox"`,
		`WITHIN/5(search rank)`,
		`"lazy dog" OR WITHIN/3(shard query)`,
	}
	for _, q := range queries {
		plan, err := parser.Parse(q)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ex.Execute(context.Background(), plan, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
