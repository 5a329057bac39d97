package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/models"
)

type fakeDB struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDB(docs ...*models.Document) *fakeDB {
	db := &fakeDB{docs: map[string]*models.Document{}}
	for _, d := range docs {
		cp := *d
		db.docs[d.ID] = &cp
	}
	return db
}

func (f *fakeDB) CreateUser(context.Context, *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, nil
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	if doc.TotalChunks != nil {
		total := *doc.TotalChunks
		cp.TotalChunks = &total
	}
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByUser(context.Context, string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDB) MarkProcessing(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.ProcessingStatus != models.StatusPending {
		return false, nil
	}
	doc.ProcessingStatus = models.StatusProcessing
	return true, nil
}

func (f *fakeDB) SetTotalChunks(_ context.Context, id string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].TotalChunks = &total
	return nil
}

func (f *fakeDB) IncrementProcessedChunks(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	if doc.TotalChunks == nil || doc.ProcessedChunks < *doc.TotalChunks {
		doc.ProcessedChunks++
	}
	return nil
}

func (f *fakeDB) MarkCompleted(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].ProcessingStatus = models.StatusCompleted
	f.docs[id].StatusMessage = message
	return nil
}

func (f *fakeDB) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].ProcessingStatus = models.StatusFailed
	f.docs[id].StatusMessage = message
	return nil
}

func (f *fakeDB) ResetForRetry(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.ProcessingStatus != models.StatusFailed {
		return false, nil
	}
	doc.ProcessingStatus = models.StatusPending
	doc.StatusMessage = ""
	doc.TotalChunks = nil
	doc.ProcessedChunks = 0
	return true, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].ProcessingStatus
}

func (f *fakeDB) message(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].StatusMessage
}

type fakeBlobs struct {
	data        []byte
	downloadErr error
	deleted     []string
}

func (f *fakeBlobs) UploadFile(_ context.Context, _ string, _ io.Reader, _ string) (string, error) {
	return "", nil
}

func (f *fakeBlobs) Download(context.Context, string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

func (f *fakeBlobs) Delete(_ context.Context, blobURL string) error {
	f.deleted = append(f.deleted, blobURL)
	return nil
}

type fakeVectors struct {
	records        []models.VectorRecord
	deletedIDs     []string
	deletedFilters []models.VectorFilter
	upsertErr      error
}

func (f *fakeVectors) Upsert(_ context.Context, records []models.VectorRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectors) Query(context.Context, []float32, int, models.VectorFilter) ([]models.VectorMatch, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteByIDs(_ context.Context, ids []string) error {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

func (f *fakeVectors) DeleteByFilter(_ context.Context, filter models.VectorFilter) error {
	f.deletedFilters = append(f.deletedFilters, filter)
	return nil
}

type fakeEmbedder struct {
	dim   int
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1 // distinguishable from a zero vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract([]byte, string) (string, error) {
	return f.text, f.err
}

func pendingDoc() *models.Document {
	return &models.Document{
		ID:               "doc-1",
		UserID:           "user-1",
		FileName:         "report.txt",
		FileType:         "text/plain",
		BlobURL:          "https://bucket.s3.amazonaws.com/users/user-1/documents/doc-1/report.txt",
		ProcessingStatus: models.StatusPending,
	}
}

type pipelineFixture struct {
	db       *fakeDB
	blobs    *fakeBlobs
	vectors  *fakeVectors
	embedder *fakeEmbedder
	pipeline *Pipeline
}

func newFixture(t *testing.T, db *fakeDB, blobs *fakeBlobs, emb *fakeEmbedder, ext core.TextExtractor, cfg Config) *pipelineFixture {
	t.Helper()
	vectors := &fakeVectors{}
	p := NewPipeline(db, blobs, vectors, emb, ext, nil, cfg, zap.NewNop().Sugar())
	return &pipelineFixture{db: db, blobs: blobs, vectors: vectors, embedder: emb, pipeline: p}
}

func TestProcessHappyPath(t *testing.T) {
	text := strings.Repeat("The contract covers liability. ", 20) // ~620 runes
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{data: []byte(text)}, &fakeEmbedder{dim: 4},
		&fakeExtractor{text: text}, Config{ChunkSize: 200, ChunkOverlap: 20, EmbedBatchSize: 2})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, db.status("doc-1"))
	assert.Contains(t, db.message("doc-1"), "report.txt")

	doc, _ := db.GetDocumentByID(context.Background(), "doc-1")
	require.NotNil(t, doc.TotalChunks)
	assert.Equal(t, *doc.TotalChunks, doc.ProcessedChunks)
	assert.Equal(t, *doc.TotalChunks, len(fx.vectors.records))

	// Deterministic vector ids in chunk order.
	for i, rec := range fx.vectors.records {
		assert.Equal(t, fmt.Sprintf("doc-1_chunk_%d", i), rec.ID)
		assert.Equal(t, "doc-1", rec.Metadata.DocumentID)
		assert.Equal(t, "user-1", rec.Metadata.UserID)
		assert.Equal(t, i, rec.Metadata.ChunkIndex)
		assert.Equal(t, "report.txt", rec.Metadata.Source)
	}
}

func TestProcessDuplicateDeliveryIsNoOp(t *testing.T) {
	doc := pendingDoc()
	doc.ProcessingStatus = models.StatusCompleted
	db := newFakeDB(doc)
	emb := &fakeEmbedder{dim: 4}
	fx := newFixture(t, db, &fakeBlobs{data: []byte("text")}, emb,
		&fakeExtractor{text: "text"}, Config{})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, db.status("doc-1"))
	assert.Zero(t, emb.calls)
	assert.Empty(t, fx.vectors.records)
}

func TestProcessUnknownDocument(t *testing.T) {
	db := newFakeDB()
	fx := newFixture(t, db, &fakeBlobs{}, &fakeEmbedder{dim: 4}, &fakeExtractor{}, Config{})

	err := fx.pipeline.Process(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestProcessWrongOwner(t *testing.T) {
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{}, &fakeEmbedder{dim: 4}, &fakeExtractor{}, Config{})

	err := fx.pipeline.Process(context.Background(), "doc-1", "someone-else")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, models.StatusPending, db.status("doc-1"))
}

func TestProcessDownloadFailureMarksFailed(t *testing.T) {
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{downloadErr: errors.New("object gone")},
		&fakeEmbedder{dim: 4}, &fakeExtractor{text: "text"}, Config{})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, db.status("doc-1"))
	assert.Contains(t, db.message("doc-1"), "download failed")
}

func TestProcessEmptyExtractionMarksFailed(t *testing.T) {
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{data: []byte{1, 2, 3}},
		&fakeEmbedder{dim: 4}, &fakeExtractor{text: "   \n  "}, Config{})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, db.status("doc-1"))
	assert.Contains(t, db.message("doc-1"), "no text content")
}

func TestProcessEmbedFailurePolicyFail(t *testing.T) {
	db := newFakeDB(pendingDoc())
	embErr := fmt.Errorf("%w: provider down", core.ErrEmbeddingFailed)
	fx := newFixture(t, db, &fakeBlobs{data: []byte("text")},
		&fakeEmbedder{dim: 4, err: embErr}, &fakeExtractor{text: "some document text"},
		Config{EmbedFailurePolicy: FailOnEmbedError})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, db.status("doc-1"))
	assert.Empty(t, fx.vectors.records)
}

func TestProcessEmbedFailurePolicyZero(t *testing.T) {
	db := newFakeDB(pendingDoc())
	embErr := fmt.Errorf("%w: provider down", core.ErrEmbeddingFailed)
	fx := newFixture(t, db, &fakeBlobs{data: []byte("text")},
		&fakeEmbedder{dim: 4, err: embErr}, &fakeExtractor{text: "some document text"},
		Config{EmbedFailurePolicy: ZeroOnEmbedError})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, db.status("doc-1"))
	assert.Contains(t, db.message("doc-1"), "could not be embedded")
	require.NotEmpty(t, fx.vectors.records)
	for _, rec := range fx.vectors.records {
		for _, v := range rec.Values {
			assert.Zero(t, v)
		}
	}
}

func TestProcessNonEmbeddingErrorIgnoresZeroPolicy(t *testing.T) {
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{data: []byte("text")},
		&fakeEmbedder{dim: 4, err: errors.New("hard failure")},
		&fakeExtractor{text: "some document text"},
		Config{EmbedFailurePolicy: ZeroOnEmbedError})

	err := fx.pipeline.Process(context.Background(), "doc-1", "user-1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, db.status("doc-1"))
}

func TestDeleteWithKnownChunkCount(t *testing.T) {
	doc := pendingDoc()
	doc.ProcessingStatus = models.StatusCompleted
	total := 3
	doc.TotalChunks = &total
	db := newFakeDB(doc)
	fx := newFixture(t, db, &fakeBlobs{}, &fakeEmbedder{dim: 4}, &fakeExtractor{}, Config{})

	err := fx.pipeline.Delete(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-1_chunk_0", "doc-1_chunk_1", "doc-1_chunk_2"}, fx.vectors.deletedIDs)
	assert.Equal(t, []string{doc.BlobURL}, fx.blobs.deleted)
	got, _ := db.GetDocumentByID(context.Background(), "doc-1")
	assert.Nil(t, got)
}

func TestDeleteWithUnknownChunkCountFallsBackToFilter(t *testing.T) {
	doc := pendingDoc()
	doc.ProcessingStatus = models.StatusFailed
	db := newFakeDB(doc)
	fx := newFixture(t, db, &fakeBlobs{}, &fakeEmbedder{dim: 4}, &fakeExtractor{}, Config{})

	err := fx.pipeline.Delete(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)

	assert.Empty(t, fx.vectors.deletedIDs)
	require.Len(t, fx.vectors.deletedFilters, 1)
	assert.Equal(t, "doc-1", fx.vectors.deletedFilters[0].DocumentID)
	assert.Equal(t, "user-1", fx.vectors.deletedFilters[0].UserID)
}

func TestDeleteWrongOwner(t *testing.T) {
	db := newFakeDB(pendingDoc())
	fx := newFixture(t, db, &fakeBlobs{}, &fakeEmbedder{dim: 4}, &fakeExtractor{}, Config{})

	err := fx.pipeline.Delete(context.Background(), "doc-1", "intruder")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	status := db.status("doc-1")
	assert.Equal(t, models.StatusPending, status)
}
