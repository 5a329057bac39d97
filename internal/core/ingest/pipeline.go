package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/core/chunker"
	"github.com/davidekete/ragdesk/internal/core/vectorstore"
	"github.com/davidekete/ragdesk/internal/models"
)

// Embed failure policies, per EMBED_FAILURE_POLICY.
const (
	FailOnEmbedError = "fail" // embedding exhaustion fails the document
	ZeroOnEmbedError = "zero" // record a zero-vector gap and keep going
)

type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
	// EmbedFailurePolicy decides whether exhausted embedding retries fail
	// the document or leave a counted zero-vector gap.
	EmbedFailurePolicy string
	ProcessTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	if c.EmbedFailurePolicy == "" {
		c.EmbedFailurePolicy = FailOnEmbedError
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 10 * time.Minute
	}
	return c
}

// Pipeline turns an uploaded file into vector chunks:
// download -> extract -> chunk -> embed -> upsert, with the document ledger
// updated at every step. Safe against at-least-once job redelivery.
type Pipeline struct {
	db        core.DbClient
	blobs     core.ObjectClient
	vectors   core.VectorStore
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	locker    Locker // nil when no lease backend is configured
	cfg       Config
	log       *zap.SugaredLogger
}

func NewPipeline(
	db core.DbClient,
	blobs core.ObjectClient,
	vectors core.VectorStore,
	embedder core.EmbeddingProvider,
	extractor core.TextExtractor,
	locker Locker,
	cfg Config,
	log *zap.SugaredLogger,
) *Pipeline {
	return &Pipeline{
		db:        db,
		blobs:     blobs,
		vectors:   vectors,
		embedder:  embedder,
		extractor: extractor,
		locker:    locker,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// Process handles one job delivery for a document. A duplicate delivery
// (the document is no longer pending, or another run holds the lease) is a
// no-op success: the queue guarantees at-least-once, not exactly-once.
// Any failure past the processing claim lands on the ledger as status
// "failed" with a message the user can act on.
func (p *Pipeline) Process(ctx context.Context, documentID, userID string) error {
	// Processing outlives the delivery context on purpose: there is no
	// mid-pipeline cancellation contract, so a run finishes or fails.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProcessTimeout)
	defer cancel()

	doc, err := p.db.GetDocumentByID(runCtx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	if doc.UserID != userID {
		return fmt.Errorf("%w: document %s does not belong to user", core.ErrUnauthorized, documentID)
	}

	if doc.ProcessingStatus != models.StatusPending {
		p.log.Infow("duplicate delivery, skipping",
			"document_id", documentID, "status", doc.ProcessingStatus)
		return nil
	}

	if p.locker != nil {
		ok, err := p.locker.Acquire(runCtx, documentID)
		if err != nil {
			p.log.Warnw("lease acquire failed, relying on status check",
				"document_id", documentID, "error", err)
		} else if !ok {
			p.log.Infow("document already leased, skipping", "document_id", documentID)
			return nil
		} else {
			defer p.locker.Release(runCtx, documentID)
		}
	}

	claimed, err := p.db.MarkProcessing(runCtx, documentID)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		p.log.Infow("document claimed by another run, skipping", "document_id", documentID)
		return nil
	}

	if err := p.run(runCtx, doc); err != nil {
		msg := userFacingMessage(err)
		if ferr := p.db.MarkFailed(runCtx, documentID, msg); ferr != nil {
			p.log.Errorw("recording failure on ledger failed",
				"document_id", documentID, "error", ferr)
		}
		p.log.Errorw("ingestion failed", "document_id", documentID, "error", err)
		return err
	}
	return nil
}

// run executes the steps after the document has been claimed. Returned
// errors become the ledger's status message.
func (p *Pipeline) run(ctx context.Context, doc *models.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error while processing document: %v", r)
		}
	}()

	data, err := p.blobs.Download(ctx, doc.BlobURL)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	text, err := p.extractor.Extract(data, doc.FileType)
	if err != nil {
		// Only unsupported formats reach here; parser failures were already
		// absorbed into placeholder text.
		return fmt.Errorf("unsupported file type %q", doc.FileType)
	}

	if strings.TrimSpace(text) == "" {
		return errors.New("no text content could be extracted from this file")
	}

	chunks := chunker.Chunk(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return errors.New("document produced no chunks")
	}
	// Record the total before embedding so progress is reportable from the
	// first chunk on.
	if err := p.db.SetTotalChunks(ctx, doc.ID, len(chunks)); err != nil {
		return fmt.Errorf("record chunk count: %w", err)
	}

	gaps, err := p.embedAndUpsert(ctx, doc, chunks)
	if err != nil {
		return err
	}

	fresh, err := p.db.GetDocumentByID(ctx, doc.ID)
	if err != nil || fresh == nil {
		return fmt.Errorf("reload document for completion check: %w", err)
	}
	if fresh.TotalChunks == nil || fresh.ProcessedChunks != *fresh.TotalChunks {
		total := -1
		if fresh.TotalChunks != nil {
			total = *fresh.TotalChunks
		}
		return fmt.Errorf("processing incomplete: %d of %d chunks embedded", fresh.ProcessedChunks, total)
	}

	msg := fmt.Sprintf("Processed %d chunks from %s.", len(chunks), doc.FileName)
	if gaps > 0 {
		msg = fmt.Sprintf("Processed %d chunks from %s; %d chunk(s) could not be embedded and were stored as placeholders.",
			len(chunks), doc.FileName, gaps)
	}
	if err := p.db.MarkCompleted(ctx, doc.ID, msg); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	p.log.Infow("ingestion completed",
		"document_id", doc.ID, "chunks", len(chunks), "embed_gaps", gaps)
	return nil
}

// embedAndUpsert embeds chunks in batches, upserts each batch under
// deterministic ids, and bumps the progress counter per chunk. Returns how
// many chunks fell back to zero vectors under the "zero" policy.
func (p *Pipeline) embedAndUpsert(ctx context.Context, doc *models.Document, chunks []string) (int, error) {
	gaps := 0
	now := time.Now()

	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vecs, err := p.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			if !errors.Is(err, core.ErrEmbeddingFailed) || p.cfg.EmbedFailurePolicy != ZeroOnEmbedError {
				return gaps, fmt.Errorf("embedding failed at chunk %d: %w", start, err)
			}
			// Degraded mode: store zero vectors so the chunk text survives
			// and the gap is visible in the completion message.
			dim := p.embedder.Dimension()
			vecs = make([][]float32, len(batch))
			for i := range vecs {
				vecs[i] = make([]float32, dim)
			}
			gaps += len(batch)
			p.log.Warnw("embedding exhausted retries, storing zero vectors",
				"document_id", doc.ID, "batch_start", start, "batch_size", len(batch))
		}
		if len(vecs) != len(batch) {
			return gaps, fmt.Errorf("embedding count mismatch: got %d want %d", len(vecs), len(batch))
		}

		records := make([]models.VectorRecord, len(batch))
		for i := range batch {
			idx := start + i
			records[i] = models.VectorRecord{
				ID:     vectorstore.ChunkID(doc.ID, idx),
				Values: vecs[i],
				Metadata: models.ChunkMetadata{
					DocumentID: doc.ID,
					UserID:     doc.UserID,
					ChunkIndex: idx,
					Text:       batch[i],
					Source:     doc.FileName,
					Timestamp:  now,
				},
			}
		}
		if err := p.vectors.Upsert(ctx, records); err != nil {
			return gaps, fmt.Errorf("vector upsert failed at chunk %d: %w", start, err)
		}

		for range batch {
			if err := p.db.IncrementProcessedChunks(ctx, doc.ID); err != nil {
				return gaps, fmt.Errorf("record chunk progress: %w", err)
			}
		}
	}
	return gaps, nil
}

// Delete removes a document's vectors, blob and ledger row. The three
// cleanups run independently: one failing does not block the others, and the
// call errors only if any of them failed.
func (p *Pipeline) Delete(ctx context.Context, documentID, userID string) error {
	doc, err := p.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	if doc.UserID != userID {
		return fmt.Errorf("%w: document %s does not belong to user", core.ErrUnauthorized, documentID)
	}

	var vectorErr error
	if doc.TotalChunks != nil && *doc.TotalChunks > 0 {
		ids := vectorstore.ChunkIDRange(doc.ID, *doc.TotalChunks)
		vectorErr = p.vectors.DeleteByIDs(ctx, ids)
	} else {
		// Chunk count unknown (never finished chunking); fall back to a
		// metadata delete.
		vectorErr = p.vectors.DeleteByFilter(ctx, models.VectorFilter{
			DocumentID: doc.ID,
			UserID:     doc.UserID,
		})
	}
	if vectorErr != nil {
		p.log.Errorw("vector cleanup failed", "document_id", doc.ID, "error", vectorErr)
	}

	var blobErr error
	if doc.BlobURL != "" {
		if blobErr = p.blobs.Delete(ctx, doc.BlobURL); blobErr != nil {
			p.log.Errorw("blob cleanup failed", "document_id", doc.ID, "error", blobErr)
		}
	}

	ledgerErr := p.db.DeleteDocument(ctx, doc.ID)
	if ledgerErr != nil {
		p.log.Errorw("ledger cleanup failed", "document_id", doc.ID, "error", ledgerErr)
	}

	return errors.Join(vectorErr, blobErr, ledgerErr)
}

// userFacingMessage trims wrapping noise while keeping enough detail to
// tell a bad file from a provider outage.
func userFacingMessage(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
