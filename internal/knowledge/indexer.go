package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// Indexer rebuilds a tenant's knowledge base: embeds each snippet, replaces
// the stored chunks wholesale, and mirrors them into the vector index.
type Indexer struct {
	embedder Embedder
	searcher Searcher
	store    storage.Store
}

// NewIndexer creates a new knowledge indexer
func NewIndexer(embedder Embedder, searcher Searcher, store storage.Store) *Indexer {
	return &Indexer{
		embedder: embedder,
		searcher: searcher,
		store:    store,
	}
}

// Replace replaces the tenant's entire knowledge base with the given
// snippets and returns the number of chunks written. Empty snippets are
// skipped.
func (i *Indexer) Replace(ctx context.Context, tenantID uuid.UUID, snippets []string) (int, error) {
	chunks := make([]*models.KnowledgeChunk, 0, len(snippets))
	for _, text := range snippets {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		vector, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk: %w", err)
		}

		chunks = append(chunks, &models.KnowledgeChunk{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Content:   text,
			Embedding: vector,
		})
	}

	if err := i.store.ReplaceKnowledgeChunks(ctx, tenantID, chunks); err != nil {
		return 0, fmt.Errorf("replace knowledge chunks: %w", err)
	}

	if err := i.searcher.Replace(ctx, tenantID, chunks); err != nil {
		// The store is the source of truth; a stale vector index degrades
		// retrieval quality but must not fail the upload.
		log.Error().Err(err).
			Str("tenantId", tenantID.String()).
			Msg("Vector index replace failed, index is stale")
	}

	return len(chunks), nil
}
