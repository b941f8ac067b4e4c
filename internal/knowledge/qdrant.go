package knowledge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/leadflow-server/leadflow-server/internal/config"
	"github.com/leadflow-server/leadflow-server/internal/models"
)

// QdrantSearcher implements Searcher for Qdrant. Chunks are stored in a
// single collection with the tenant id as a payload field; every query
// filters on it so tenants never see each other's knowledge.
type QdrantSearcher struct {
	client     *qdrant.Client
	collection string
	timeout    time.Duration
}

// NewQdrantSearcher creates a new Qdrant-backed searcher
func NewQdrantSearcher(cfg *config.QdrantConfig) (*QdrantSearcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	parsed := cfg.URL
	if !strings.HasPrefix(parsed, "http://") && !strings.HasPrefix(parsed, "https://") {
		parsed = "https://" + parsed
	}

	u, err := url.Parse(parsed)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantSearcher{
		client:     client,
		collection: cfg.Collection,
		timeout:    cfg.RequestTimeout,
	}, nil
}

// Search implements Searcher
func (s *QdrantSearcher) Search(ctx context.Context, tenantID uuid.UUID, vector []float32, minScore float32, limit int) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	limitU := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitU,
		Filter:         tenantFilter(tenantID),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		if minScore > 0 && point.Score < minScore {
			continue
		}

		result := SearchResult{Score: point.Score}

		if point.Id != nil {
			if id, err := uuid.Parse(point.Id.GetUuid()); err == nil {
				result.ID = id
			}
		}

		if point.Payload != nil {
			if v, ok := point.Payload["content"]; ok {
				result.Content = v.GetStringValue()
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// Replace implements Searcher
func (s *QdrantSearcher) Replace(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(tenantFilter(tenantID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID.String()),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"tenant_id": tenantID.String(),
				"content":   chunk.Content,
			}),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}

	return nil
}

// Close implements Searcher
func (s *QdrantSearcher) Close() error {
	return s.client.Close()
}

func tenantFilter(tenantID uuid.UUID) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("tenant_id", tenantID.String()),
		},
	}
}

// Compile-time check that QdrantSearcher implements Searcher.
var _ Searcher = (*QdrantSearcher)(nil)
