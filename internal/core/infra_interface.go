package core

import (
	"context"
	"io"

	"github.com/davidekete/ragdesk/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
//
// The status-transition methods returning bool implement compare-and-swap
// semantics: false means the row was not in the expected source state, which
// is how duplicate job deliveries are detected.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// MarkProcessing transitions pending -> processing. Returns false when the
	// document was not pending (duplicate delivery, already done, or failed).
	MarkProcessing(ctx context.Context, id string) (bool, error)
	SetTotalChunks(ctx context.Context, id string, total int) error
	// IncrementProcessedChunks adds one to processed_chunks atomically in the
	// database, never past total_chunks.
	IncrementProcessedChunks(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, message string) error
	MarkFailed(ctx context.Context, id, message string) error
	// ResetForRetry transitions failed -> pending, clearing progress. Returns
	// false when the document was not failed.
	ResetForRetry(ctx context.Context, id string) (bool, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage holding
// raw document bytes. Download and Delete address objects by the opaque blob
// URL stored on the ledger row.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	Download(ctx context.Context, blobURL string) ([]byte, error)
	Delete(ctx context.Context, blobURL string) error
}

// VectorStore is the black-box nearest-neighbor index contract: any provider
// offering batched upsert, filtered top-K query and idempotent deletion
// satisfies it.
type VectorStore interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
	// Query returns the topK nearest matches. Implementations must enforce
	// the UserID filter so per-user isolation holds at the storage layer.
	Query(ctx context.Context, vector []float32, topK int, filter models.VectorFilter) ([]models.VectorMatch, error)
	// DeleteByIDs and DeleteByFilter are idempotent: deleting absent entries
	// is not an error.
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByFilter(ctx context.Context, filter models.VectorFilter) error
}

// TextExtractor converts raw file bytes into UTF-8 text for a given MIME type.
type TextExtractor interface {
	Extract(data []byte, mimeType string) (string, error)
}
