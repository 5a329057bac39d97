package dispatch

import (
	"context"
)

// Job is the ingestion job payload: the contract between the dispatcher and
// the pipeline, regardless of which transport carries it. The transport
// guarantees at-least-once delivery; the pipeline's idempotency check makes
// duplicates harmless.
type Job struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

// Dispatcher enqueues one ingestion job per uploaded document, and again on
// manual retry.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}
