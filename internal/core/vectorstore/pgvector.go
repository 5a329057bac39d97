package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core"
	"github.com/davidekete/ragdesk/internal/models"
)

// PgvectorStore implements the VectorStore contract on top of a pgvector
// table. Any managed ANN service with upsert/query/delete-by-filter could
// stand in behind the same interface.
type PgvectorStore struct {
	db         *sql.DB
	batchLimit int
	log        *zap.SugaredLogger
}

var _ core.VectorStore = (*PgvectorStore)(nil)

func NewPgvectorStore(db *sql.DB, batchLimit int, log *zap.SugaredLogger) *PgvectorStore {
	if batchLimit <= 0 {
		batchLimit = 1000
	}
	return &PgvectorStore{db: db, batchLimit: batchLimit, log: log}
}

// EnsureDimension checks the embedding column's declared dimensionality
// against the embedder's. Run once at startup; a mismatch here would
// otherwise surface as per-call insert errors mid-pipeline.
func (s *PgvectorStore) EnsureDimension(ctx context.Context, dim int) error {
	const q = `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'vector_chunks'::regclass AND attname = 'embedding'
	`
	var typmod int
	if err := s.db.QueryRowContext(ctx, q).Scan(&typmod); err != nil {
		return fmt.Errorf("read embedding column dimension: %w", err)
	}
	if typmod != dim {
		return fmt.Errorf("vector index dimension %d does not match embedding dimension %d", typmod, dim)
	}
	return nil
}

// Upsert writes records in batches of at most batchLimit. A failed batch is
// logged and the remaining batches still run; the call errors only when
// every batch failed.
func (s *PgvectorStore) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	var firstErr error
	failed := 0
	batches := 0
	for start := 0; start < len(records); start += s.batchLimit {
		end := start + s.batchLimit
		if end > len(records) {
			end = len(records)
		}
		batches++
		if err := s.upsertBatch(ctx, records[start:end]); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.log.Errorw("vector upsert batch failed",
				"batch_start", start, "batch_size", end-start, "error", err)
			continue
		}
	}
	if failed == batches {
		return fmt.Errorf("all %d upsert batches failed: %w", batches, firstErr)
	}
	return nil
}

func (s *PgvectorStore) upsertBatch(ctx context.Context, records []models.VectorRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_chunks
			(id, document_id, user_id, chunk_index, text, source, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		ts := r.Metadata.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Metadata.DocumentID, r.Metadata.UserID, r.Metadata.ChunkIndex,
			r.Metadata.Text, r.Metadata.Source, pgvector.NewVector(r.Values), ts,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns the topK nearest chunks by cosine distance. The UserID
// filter is mandatory: isolation is enforced here, not just in handlers.
func (s *PgvectorStore) Query(ctx context.Context, vector []float32, topK int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	if filter.UserID == "" {
		return nil, errors.New("vector query requires a user filter")
	}
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(vector)
	q := `
		SELECT id, document_id, user_id, chunk_index, text, source, created_at,
		       1 - (embedding <=> $1) AS score
		FROM vector_chunks
		WHERE user_id = $2`
	args := []any{vec, filter.UserID}
	if filter.DocumentID != "" {
		q += ` AND document_id = $3`
		args = append(args, filter.DocumentID)
	}
	q += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.VectorMatch
	for rows.Next() {
		var m models.VectorMatch
		if err := rows.Scan(
			&m.ID, &m.Metadata.DocumentID, &m.Metadata.UserID, &m.Metadata.ChunkIndex,
			&m.Metadata.Text, &m.Metadata.Source, &m.Metadata.Timestamp, &m.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PgvectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for start := 0; start < len(ids); start += s.batchLimit {
		end := start + s.batchLimit
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_chunks WHERE id = ANY($1)`, ids[start:end]); err != nil {
			return fmt.Errorf("delete vectors by id: %w", err)
		}
	}
	return nil
}

func (s *PgvectorStore) DeleteByFilter(ctx context.Context, filter models.VectorFilter) error {
	switch {
	case filter.DocumentID != "" && filter.UserID != "":
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_chunks WHERE document_id = $1 AND user_id = $2`,
			filter.DocumentID, filter.UserID)
		return err
	case filter.DocumentID != "":
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_chunks WHERE document_id = $1`, filter.DocumentID)
		return err
	case filter.UserID != "":
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM vector_chunks WHERE user_id = $1`, filter.UserID)
		return err
	default:
		// Refuse to wipe the whole index on an empty filter.
		return errors.New("delete by empty filter refused")
	}
}
