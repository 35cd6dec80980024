package storage

import (
	"context"
	"fmt"
)

// ChunkRecord is a persisted material chunk with its embedding, the durable
// form the in-memory vector index is rehydrated from at API startup.
type ChunkRecord struct {
	ChunkID      string
	MaterialID   string
	ChunkIndex   int
	Text         string
	EmbedVersion string
	Embedding    []float32
	// MaterialTitle is populated only on joined reads.
	MaterialTitle string
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceMaterialChunks swaps the persisted chunk set of one material in a
// single transaction, mirroring the index's replace-not-merge contract.
func (r *ChunkRepo) ReplaceMaterialChunks(ctx context.Context, materialID string, chunks []ChunkRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM material_chunks WHERE material_id=$1`, materialID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO material_chunks (chunk_id, material_id, chunk_index, text, embed_version, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ChunkID, c.MaterialID, c.ChunkIndex, c.Text, c.EmbedVersion, c.Embedding,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

// ListEmbeddedChunks returns every chunk carrying an embedding, grouped by
// material in insertion order then chunk position.
func (r *ChunkRepo) ListEmbeddedChunks(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT c.chunk_id, c.material_id, c.chunk_index, c.text, c.embed_version, c.embedding, m.title
FROM material_chunks c
JOIN materials m ON m.material_id = c.material_id
WHERE c.embedding IS NOT NULL
ORDER BY m.created_at ASC, c.chunk_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("list embedded chunks: %w", err)
	}
	defer rows.Close()
	out := make([]ChunkRecord, 0, 64)
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ChunkID, &c.MaterialID, &c.ChunkIndex, &c.Text, &c.EmbedVersion, &c.Embedding, &c.MaterialTitle); err != nil {
			return nil, fmt.Errorf("scan embedded chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedded chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) ListMaterialChunks(ctx context.Context, materialID string) ([]ChunkRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, material_id, chunk_index, text, embed_version, embedding
FROM material_chunks
WHERE material_id=$1
ORDER BY chunk_index ASC`, materialID)
	if err != nil {
		return nil, fmt.Errorf("list material chunks: %w", err)
	}
	defer rows.Close()
	out := make([]ChunkRecord, 0, 64)
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ChunkID, &c.MaterialID, &c.ChunkIndex, &c.Text, &c.EmbedVersion, &c.Embedding); err != nil {
			return nil, fmt.Errorf("scan material chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
