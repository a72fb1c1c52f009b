// Command loadtest drives the searcher with a mix of keyword, phrase and
// proximity queries and prints a latency report.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// request builds one HTTP request against base.
type request func(ctx context.Context, base string) (*http.Request, error)

func search(q string) request {
	return func(ctx context.Context, base string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", base, url.QueryEscape(q)), nil)
	}
}

func proximity(body string) request {
	return func(ctx context.Context, base string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/proximity", bytes.NewBufferString(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
}

var workload = []request{
	search(`distributed systems`),
	search(`"inverted index"`),
	search(`"full text search"~1`),
	search(`WITHIN/5(shard routing)`),
	search(`title:"search engine" ranking`),
	search(`"query processing" OR "query planning"`),
	search(`cache NOT "cache invalidation"`),
	search(`"new york"^60 city`),
	proximity(`{"function":"phrase","terms":["document","ingestion"]}`),
	proximity(`{"function":"adjacent","terms":["token","stemming"]}`),
	proximity(`{"function":"within","terms":["bm25","ranking","score"],"distance":8}`),
	proximity(`{"function":"scoredphrase","terms":["nyc","subway"],"max_score":60}`),
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	fmt.Println("=== Proximity Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Workload:    %d requests\n\n", len(workload))

	rec := newRecorder()
	if err := run(*baseURL, *concurrency, *duration, rec); err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	r := rec.report(*duration)
	r.print(os.Stdout)
	if r.Total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(base string, concurrency int, duration time.Duration, rec *recorder) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		w := w
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				req, err := workload[i%len(workload)](ctx, base)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						rec.record(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				rec.record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	return g.Wait()
}
