package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/proximity"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// SpanRecorder receives the results of freshly computed searches.
type SpanRecorder interface {
	RecordResult(result *executor.SearchResult)
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	spans        SpanRecorder
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New returns a Handler. queryCache, spans and m may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, spans SpanRecorder, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		spans:        spans,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// ProximityRequest is the body of POST /api/v1/proximity.
type ProximityRequest struct {
	Function string   `json:"function"`
	Terms    []string `json:"terms"`
	// Distance defaults to len(terms)-1 for the phrase functions and is
	// required for within.
	Distance *int     `json:"distance,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	MaxScore *float32 `json:"max_score,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := h.limit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, query, err)
		return
	}
	plan, err := parser.Parse(query)
	if err != nil {
		h.fail(w, r, query, err)
		return
	}
	h.run(w, r, plan, limit)
}

// Proximity evaluates a single structured clause.
func (h *Handler) Proximity(w http.ResponseWriter, r *http.Request) {
	var req ProximityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	clause, err := clauseFromRequest(&req)
	if err != nil {
		h.fail(w, r, req.Function, err)
		return
	}
	limit := h.defaultLimit
	if req.Limit != 0 {
		if limit, err = h.limit(strconv.Itoa(req.Limit)); err != nil {
			h.fail(w, r, req.Function, err)
			return
		}
	}
	h.run(w, r, parser.ClausePlan(clause), limit)
}

func clauseFromRequest(req *ProximityRequest) (parser.ProximityClause, error) {
	fn := proximity.Function(req.Function)
	if !fn.Valid() {
		return parser.ProximityClause{}, apperrors.Newf(apperrors.ErrUnknownFunction, http.StatusBadRequest, "unknown function %q", req.Function)
	}
	if len(req.Terms) == 0 {
		return parser.ProximityClause{}, apperrors.Invalid("at least one term is required")
	}
	terms, err := parser.NormalizeTerms(req.Terms)
	if err != nil {
		return parser.ProximityClause{}, err
	}
	c := parser.ProximityClause{
		Function: fn,
		Terms:    terms,
		Distance: len(terms) - 1,
		Fields:   req.Fields,
		MaxScore: proximity.NoScoreFilter,
	}
	switch {
	case req.Distance != nil && *req.Distance < 0:
		return parser.ProximityClause{}, apperrors.Invalid("distance must not be negative")
	case req.Distance != nil:
		c.Distance = *req.Distance
	case fn == proximity.FunctionWithin:
		return parser.ProximityClause{}, apperrors.Invalid("within requires a distance")
	}
	if req.MaxScore != nil {
		if *req.MaxScore < 0 {
			return parser.ProximityClause{}, apperrors.Invalid("max_score must not be negative")
		}
		c.MaxScore = *req.MaxScore
	}
	return c, nil
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, plan *parser.QueryPlan, limit int) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	compute := func() (*executor.SearchResult, error) {
		result, err := h.executor.Execute(ctx, plan, limit)
		if err == nil && h.spans != nil {
			h.spans.RecordResult(result)
		}
		return result, err
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil && !plan.Empty() {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, limit, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		h.fail(w, r, plan.RawQuery, err)
		return
	}

	elapsed := time.Since(start)
	h.observe(result, cacheHit, elapsed)
	log.Info("search completed",
		"query", plan.RawQuery,
		"clauses", len(plan.Clauses),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(result *executor.SearchResult, cacheHit bool, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType, cacheStatus := "miss", "miss"
	if cacheHit {
		resultType, cacheStatus = "hit", "hit"
	}
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
}

// limit parses raw, clamping it to maxResults.
func (h *Handler) limit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, h.maxResults), nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("search failed", "query", query, "error", err, "status_code", status)
		h.writeError(w, status, "search failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
