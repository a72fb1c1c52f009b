// Package validator provides input validation for ingestion requests. It
// enforces field name and text length constraints and returns per-field
// error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Proximity-Search/internal/ingestion"
)

const (
	maxFields         = 32
	maxFieldNameLen   = 64
	maxFieldTextLen   = 1048576
	maxIdempotencyLen = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks field names and sizes. At least one field
// must carry non-blank text.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	switch {
	case len(req.Fields) == 0:
		errs["fields"] = "at least one field is required"
	case len(req.Fields) > maxFields:
		errs["fields"] = fmt.Sprintf("at most %d fields are allowed", maxFields)
	}
	nonBlank := 0
	for name, text := range req.Fields {
		if msg := checkFieldName(name); msg != "" {
			errs["fields."+name] = msg
			continue
		}
		if len(text) > maxFieldTextLen {
			errs["fields."+name] = fmt.Sprintf("text must be at most %d bytes", maxFieldTextLen)
		}
		if strings.TrimSpace(text) != "" {
			nonBlank++
		}
	}
	if len(req.Fields) > 0 && nonBlank == 0 {
		errs["fields"] = "all fields are empty"
	}
	if len(req.IdempotencyKey) > maxIdempotencyLen {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyLen)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// checkFieldName accepts lowercase identifiers usable in a field: query
// prefix.
func checkFieldName(name string) string {
	if name == "" {
		return "field name is required"
	}
	if len(name) > maxFieldNameLen {
		return fmt.Sprintf("field name must be at most %d characters", maxFieldNameLen)
	}
	for _, r := range name {
		if !(unicode.IsLower(r) || unicode.IsDigit(r) || r == '_') {
			return "field name may contain only lowercase letters, digits and underscores"
		}
	}
	return ""
}
