package knowledge

import (
	"context"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// SearchResult represents one similarity search hit
type SearchResult struct {
	ID      uuid.UUID
	Score   float32
	Content string
}

// Searcher is the vector similarity search interface. Results are returned
// in descending similarity order.
type Searcher interface {
	Search(ctx context.Context, tenantID uuid.UUID, vector []float32, minScore float32, limit int) ([]SearchResult, error)
	// Replace removes every vector for the tenant and upserts the given
	// chunks, mirroring the store's delete-all-then-insert semantics.
	Replace(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error
	Close() error
}

// Embedder computes embedding vectors for free text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
