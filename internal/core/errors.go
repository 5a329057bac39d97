package core

import "errors"

// Sentinel errors shared across components. Callers match them with
// errors.Is so handlers can map them onto HTTP statuses.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidState      = errors.New("invalid state")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmbeddingFailed   = errors.New("embedding failed after retries")
)
