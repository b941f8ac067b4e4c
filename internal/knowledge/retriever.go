package knowledge

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// fallbackChunkLimit bounds how many recent chunks the degraded path reads.
const fallbackChunkLimit = 5

// Retriever returns the best-matching knowledge snippets for a query via
// vector similarity, falling back to the tenant's most recent chunks when
// the retrieval layer itself fails. An empty similarity result is a clean
// outcome, not a fallback trigger.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	store    storage.Store
}

// NewRetriever creates a new knowledge retriever
func NewRetriever(embedder Embedder, searcher Searcher, store storage.Store) *Retriever {
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		store:    store,
	}
}

// Retrieve returns concatenated context for the query, possibly empty.
// It never fails; the worst case is an empty string.
func (r *Retriever) Retrieve(ctx context.Context, tenantID uuid.UUID, query string, eff models.Settings) string {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).
			Str("tenantId", tenantID.String()).
			Msg("Embedding failed, using fallback knowledge")
		return r.fallback(ctx, tenantID)
	}

	results, err := r.searcher.Search(ctx, tenantID, vector, eff.SimilarityThreshold, eff.MaxContextSnippets)
	if err != nil {
		log.Warn().Err(err).
			Str("tenantId", tenantID.String()).
			Msg("Similarity search failed, using fallback knowledge")
		return r.fallback(ctx, tenantID)
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		if res.Content != "" {
			parts = append(parts, res.Content)
		}
	}

	return strings.Join(parts, "\n")
}

// fallback reads the tenant's most recent chunks without any similarity
// filter.
func (r *Retriever) fallback(ctx context.Context, tenantID uuid.UUID) string {
	chunks, err := r.store.ListRecentKnowledgeChunks(ctx, tenantID, fallbackChunkLimit)
	if err != nil {
		log.Error().Err(err).
			Str("tenantId", tenantID.String()).
			Msg("Fallback knowledge read failed")
		return ""
	}

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Content != "" {
			parts = append(parts, chunk.Content)
		}
	}

	return strings.Join(parts, "\n")
}
