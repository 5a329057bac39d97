package vectorstore

import (
	"fmt"
)

// ChunkID builds the deterministic vector id for a chunk. Re-processing a
// document yields the same ids, so upserts overwrite and deletes can be
// computed from total_chunks alone.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// ChunkIDRange returns the ids 0..total-1 for a document.
func ChunkIDRange(documentID string, total int) []string {
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		ids = append(ids, ChunkID(documentID, i))
	}
	return ids
}
