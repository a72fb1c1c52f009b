package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

type fakeExecutor struct {
	mu    sync.Mutex
	plans []*parser.QueryPlan
	limit int
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return &executor.SearchResult{
		Query:     plan.RawQuery,
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{DocID: "d1", Score: 1}},
		Clauses:   plan.Clauses,
	}, nil
}

type countingRecorder struct{ n int }

func (c *countingRecorder) RecordResult(*executor.SearchResult) { c.n++ }

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = map[string][]byte{}
	return n, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSearch(t *testing.T) {
	exec := &fakeExecutor{}
	spans := &countingRecorder{}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	h := New(exec, nil, spans, m, 10, 50)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, `/api/v1/search?q=%22quick+fox%22&limit=500`, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, exec.limit)
	require.Len(t, exec.plans, 1)
	require.Len(t, exec.plans[0].Clauses, 1)
	assert.Equal(t, proximity.FunctionPhrase, exec.plans[0].Clauses[0].Function)
	assert.Equal(t, 1, spans.n)
	assert.Equal(t, float64(1), decode(t, rec)["total_hits"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("miss")))
}

func TestSearchRejectsBadInput(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, 10, 50)
	tests := []struct {
		name string
		url  string
	}{
		{"missing query", "/api/v1/search"},
		{"bad limit", "/api/v1/search?q=fox&limit=-1"},
		{"unterminated phrase", "/api/v1/search?q=%22quick+fox"},
		{"bad within", "/api/v1/search?q=WITHIN/x(fox+dog)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Search(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestSearchMapsExecutorErrors(t *testing.T) {
	exec := &fakeExecutor{err: apperrors.New(apperrors.ErrShardUnavailable, http.StatusServiceUnavailable, "all shards failed")}
	h := New(exec, nil, nil, nil, 10, 50)

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=fox", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "search failed", decode(t, rec)["error"])
}

func TestSearchCachedResultSkipsSpans(t *testing.T) {
	exec := &fakeExecutor{}
	spans := &countingRecorder{}
	qc := cache.New(&memStore{data: map[string][]byte{}}, time.Minute, nil)
	h := New(exec, qc, spans, nil, 10, 50)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=quick+fox", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, exec.plans, 1)
	assert.Equal(t, 1, spans.n)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, float64(1), decode(t, rec)["hits"])

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["keys_deleted"])
}

func TestProximity(t *testing.T) {
	exec := &fakeExecutor{}
	h := New(exec, nil, nil, nil, 10, 50)

	body := `{"function":"phrase","terms":["Quick","Foxes"],"fields":["title"]}`
	rec := httptest.NewRecorder()
	h.Proximity(rec, httptest.NewRequest(http.MethodPost, "/api/v1/proximity", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, exec.plans, 1)
	c := exec.plans[0].Clauses[0]
	assert.Equal(t, []string{"quick", "fox"}, c.Terms)
	assert.Equal(t, 1, c.Distance)
	assert.Equal(t, []string{"title"}, c.Fields)
	assert.Equal(t, proximity.NoScoreFilter, c.MaxScore)
	assert.Equal(t, 10, exec.limit)
}

func TestProximityScoredWithinAndLimit(t *testing.T) {
	exec := &fakeExecutor{}
	h := New(exec, nil, nil, nil, 10, 50)

	body := `{"function":"scoredphrase","terms":["nyc","city"],"distance":3,"max_score":40,"limit":5}`
	rec := httptest.NewRecorder()
	h.Proximity(rec, httptest.NewRequest(http.MethodPost, "/api/v1/proximity", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	c := exec.plans[0].Clauses[0]
	assert.Equal(t, 3, c.Distance)
	assert.Equal(t, float32(40), c.MaxScore)
	assert.Equal(t, 5, exec.limit)
}

func TestProximityRejectsBadRequests(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, 10, 50)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"function":`},
		{"unknown function", `{"function":"nearby","terms":["a","b"]}`},
		{"no terms", `{"function":"phrase","terms":[]}`},
		{"within without distance", `{"function":"within","terms":["fox","dog"]}`},
		{"negative distance", `{"function":"within","terms":["fox","dog"],"distance":-1}`},
		{"stop word term", `{"function":"phrase","terms":["the","fox"]}`},
		{"negative max score", `{"function":"scoredphrase","terms":["nyc","city"],"max_score":-2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Proximity(rec, httptest.NewRequest(http.MethodPost, "/api/v1/proximity", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	h := New(&fakeExecutor{}, nil, nil, nil, 10, 50)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.Equal(t, "disabled", decode(t, rec)["status"])

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
