package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/core/dispatch"
	"github.com/davidekete/ragdesk/internal/core/ingest"
	"github.com/davidekete/ragdesk/internal/models"
)

// DocumentService owns the document lifecycle around the pipeline: upload
// creates the ledger row and enqueues the ingestion job; retry and delete
// enforce the corresponding state rules.
type DocumentService struct {
	db         core.DbClient
	storage    core.ObjectClient
	dispatcher dispatch.Dispatcher
	pipeline   *ingest.Pipeline
	log        *zap.SugaredLogger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, dispatcher dispatch.Dispatcher, pipeline *ingest.Pipeline, log *zap.SugaredLogger) *DocumentService {
	return &DocumentService{db: db, storage: storage, dispatcher: dispatcher, pipeline: pipeline, log: log}
}

// UploadAndDispatch stores the raw bytes, creates the pending ledger row and
// enqueues the ingestion job. A failed enqueue leaves the document failed
// with a message, so a manual retry can pick it up.
func (s *DocumentService) UploadAndDispatch(ctx context.Context, userID, filename, contentType, folderPath string, size int64, data io.Reader) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(userID, docID, filename)

	blobURL, err := s.storage.UploadFile(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	doc := &models.Document{
		ID:               docID,
		UserID:           userID,
		FileName:         filename,
		FileType:         contentType,
		FileSize:         size,
		FolderPath:       folderPath,
		Title:            titleFromFilename(filename),
		BlobURL:          blobURL,
		ProcessingStatus: models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, dispatch.Job{DocumentID: docID, UserID: userID}); err != nil {
		s.log.Errorw("enqueue ingestion job failed", "document_id", docID, "error", err)
		_ = s.db.MarkFailed(ctx, docID, "Could not queue the document for processing. Use retry.")
		doc.ProcessingStatus = models.StatusFailed
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, documentID, userID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("%w: document %s", core.ErrUnauthorized, documentID)
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// Delete removes vectors, blob and ledger row via the pipeline's best-effort
// cleanup.
func (s *DocumentService) Delete(ctx context.Context, documentID, userID string) error {
	return s.pipeline.Delete(ctx, documentID, userID)
}

// Retry resets a failed document to pending and re-enqueues its job. Only
// failed documents qualify.
func (s *DocumentService) Retry(ctx context.Context, documentID, userID string) error {
	doc, err := s.Get(ctx, documentID, userID)
	if err != nil {
		return err
	}
	if doc.ProcessingStatus != models.StatusFailed {
		return fmt.Errorf("%w: document is %s, only failed documents can be retried",
			core.ErrInvalidState, doc.ProcessingStatus)
	}

	reset, err := s.db.ResetForRetry(ctx, documentID)
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if !reset {
		return fmt.Errorf("%w: document is no longer failed", core.ErrInvalidState)
	}

	if err := s.dispatcher.Enqueue(ctx, dispatch.Job{DocumentID: documentID, UserID: userID}); err != nil {
		_ = s.db.MarkFailed(ctx, documentID, "Could not queue the document for processing. Use retry.")
		return fmt.Errorf("enqueue retry job: %w", err)
	}
	return nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}

func titleFromFilename(filename string) string {
	base := path.Base(filename)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
