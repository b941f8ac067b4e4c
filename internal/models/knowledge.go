package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeChunk is one snippet of a tenant's knowledge base with its
// precomputed embedding. Chunks are replaced wholesale when a tenant
// re-uploads its knowledge base.
type KnowledgeChunk struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`

	Content   string `json:"content" db:"content"`
	Embedding Vector `json:"-" db:"embedding"`
}
