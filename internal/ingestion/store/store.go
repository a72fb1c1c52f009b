// Package store persists document metadata and indexing status in
// PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/pkg/postgres"
)

// Schema creates the documents table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	fields          TEXT[] NOT NULL,
	content_size    INTEGER NOT NULL,
	shard_id        INTEGER NOT NULL,
	idempotency_key TEXT UNIQUE,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	indexed_at      TIMESTAMPTZ
)`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Record is the stored metadata of one document.
type Record struct {
	ID             string
	Fields         []string
	ContentSize    int
	ShardID        int
	IdempotencyKey string
}

type Store struct {
	db *postgres.Client
}

func New(db *postgres.Client) *Store {
	return &Store{db: db}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Insert stores rec as PENDING. A reused idempotency key is reported as
// ErrDocumentExists.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, fields, content_size, shard_id, idempotency_key, status)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, pq.Array(rec.Fields), rec.ContentSize, rec.ShardID,
			nullableString(rec.IdempotencyKey), ingestion.StatusPending,
		)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperrors.New(apperrors.ErrDocumentExists, http.StatusConflict, "idempotency key already in use")
		}
		return err
	})
}

// FindByIdempotencyKey returns the document stored under key, or nil.
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, status, shard_id FROM documents WHERE idempotency_key = $1`, key,
	).Scan(&resp.DocumentID, &resp.Status, &resp.ShardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return &resp, nil
}

// UpdateStatus records the indexing outcome of a document.
func (s *Store) UpdateStatus(ctx context.Context, docID, status string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", docID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating status of %s: %w", docID, apperrors.ErrDocumentNotFound)
	}
	return nil
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
