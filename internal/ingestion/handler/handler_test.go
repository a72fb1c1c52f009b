package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
)

type stubIngester struct {
	resp *ingestion.IngestResponse
	err  error
	got  *ingestion.IngestRequest
}

func (s *stubIngester) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestIngestAccepted(t *testing.T) {
	ing := &stubIngester{resp: &ingestion.IngestResponse{DocumentID: "d1", Status: ingestion.StatusPending, ShardID: 1}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"fields":{"body":"hello world"}}`))

	New(ing).Ingest(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "d1", resp.DocumentID)
	assert.Equal(t, "hello world", ing.got.Fields["body"])
}

func TestIngestRejectsInvalid(t *testing.T) {
	ing := &stubIngester{}
	for _, body := range []string{`{`, `{"fields":{}}`} {
		rec := httptest.NewRecorder()
		New(ing).Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Nil(t, ing.got)
}

func TestIngestMapsErrors(t *testing.T) {
	ing := &stubIngester{err: apperrors.ErrDocumentExists}
	rec := httptest.NewRecorder()

	New(ing).Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"fields":{"body":"x"}}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}
