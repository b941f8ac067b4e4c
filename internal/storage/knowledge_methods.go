package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// ========== Knowledge Methods ==========

// ReplaceKnowledgeChunks replaces a tenant's knowledge base wholesale:
// delete-all-then-insert inside one transaction.
func (s *PostgresStore) ReplaceKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	pg := tx.(*PostgresStore)
	if _, err := pg.getDB().ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE tenant_id = $1`, tenantID,
	); err != nil {
		return err
	}

	query := `
        INSERT INTO knowledge_chunks (id, created_at, tenant_id, content, embedding)
        VALUES ($1, $2, $3, $4, $5)`

	now := time.Now()
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		chunk.TenantID = tenantID

		if _, err := pg.getDB().ExecContext(ctx, query,
			chunk.ID, chunk.CreatedAt, chunk.TenantID, chunk.Content, chunk.Embedding,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRecentKnowledgeChunks lists a tenant's most recently created chunks
func (s *PostgresStore) ListRecentKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.KnowledgeChunk, error) {
	query := `
        SELECT id, created_at, tenant_id, content, embedding
        FROM knowledge_chunks
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.KnowledgeChunk
	for rows.Next() {
		chunk := &models.KnowledgeChunk{}
		err := rows.Scan(
			&chunk.ID, &chunk.CreatedAt, &chunk.TenantID,
			&chunk.Content, &chunk.Embedding,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}
