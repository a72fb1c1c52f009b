package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       ingestion.IngestRequest
		wantField string
	}{
		{
			name: "valid",
			req:  ingestion.IngestRequest{Fields: map[string]string{"title": "Hello", "body": "World"}},
		},
		{
			name:      "no fields",
			req:       ingestion.IngestRequest{},
			wantField: "fields",
		},
		{
			name:      "all blank",
			req:       ingestion.IngestRequest{Fields: map[string]string{"body": "   "}},
			wantField: "fields",
		},
		{
			name:      "bad field name",
			req:       ingestion.IngestRequest{Fields: map[string]string{"Body Text": "x", "body": "ok"}},
			wantField: "fields.Body Text",
		},
		{
			name:      "idempotency key too long",
			req:       ingestion.IngestRequest{Fields: map[string]string{"body": "x"}, IdempotencyKey: strings.Repeat("k", 256)},
			wantField: "idempotency_key",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tc.req)
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.wantField)
		})
	}
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "two", "a": "one"}}
	assert.Equal(t, "a:one; b:two", err.Error())
}
