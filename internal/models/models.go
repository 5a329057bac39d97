package models

import (
	"time"
)

// Document processing lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document is the per-document status ledger row: the single source of truth
// the ingestion pipeline writes and the API reads.
//
// ProcessingStatus only moves pending -> processing -> {completed|failed};
// a manual retry resets failed -> pending. ProcessedChunks is incremented
// atomically in the database and never exceeds TotalChunks once set.
type Document struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	FileType         string    `db:"file_type" json:"file_type"` // MIME type
	FileSize         int64     `db:"file_size" json:"file_size"`
	FolderPath       string    `db:"folder_path" json:"folder_path,omitempty"`
	Title            string    `db:"title" json:"title"`
	BlobURL          string    `db:"blob_url" json:"blob_url"` // empty for inline artifacts
	ProcessingStatus string    `db:"processing_status" json:"processing_status"`
	StatusMessage    string    `db:"status_message" json:"status_message,omitempty"`
	TotalChunks      *int      `db:"total_chunks" json:"total_chunks"` // nil until chunking completes
	ProcessedChunks  int       `db:"processed_chunks" json:"processed_chunks"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ChunkMetadata travels with every vector record and comes back on query
// matches. Source is the originating file name.
type ChunkMetadata struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// VectorRecord is one upsert unit for the vector store. IDs follow the
// deterministic "{documentID}_chunk_{index}" scheme so re-ingestion
// overwrites instead of duplicating.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata ChunkMetadata
}

// VectorMatch is one nearest-neighbor query result.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

// VectorFilter narrows queries and deletes by metadata. A zero field means
// no constraint on it.
type VectorFilter struct {
	UserID     string
	DocumentID string
}

// ContextSource records one retrieved chunk that informed an answer.
type ContextSource struct {
	Source    string  `json:"source"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
}

// SearchResult is one live web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchInfo records the web search performed for an answer, including the
// original user phrasing and the enhanced query actually sent.
type SearchInfo struct {
	Original string         `json:"original"`
	Enhanced string         `json:"enhanced"`
	Results  []SearchResult `json:"results"`
}

// MessageMetadata is attached to a generated chat answer for audit and
// debugging: which sources and which search informed it.
type MessageMetadata struct {
	ContextSources []ContextSource `json:"contextSources"`
	VectorIDs      []string        `json:"vectorIds"`
	SearchInfo     *SearchInfo     `json:"searchInfo,omitempty"`
}
