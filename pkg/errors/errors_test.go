package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"invalid query", Invalid("unterminated phrase at %d", 3), http.StatusBadRequest},
		{"wrapped unknown function", fmt.Errorf("parsing request: %w", ErrUnknownFunction), http.StatusBadRequest},
		{"shard unavailable", fmt.Errorf("shard 2: %w", ErrShardUnavailable), http.StatusServiceUnavailable},
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"other", context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidQuery, http.StatusBadRequest, "distance %d", -1)

	assert.True(t, errors.Is(err, ErrInvalidQuery))
	assert.Equal(t, "invalid query: distance -1", err.Error())
}
