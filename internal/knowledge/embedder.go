package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/leadflow-server/leadflow-server/internal/config"
)

// OpenAIEmbedder computes embeddings through the OpenAI embeddings API
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
}

// NewOpenAIEmbedder creates a new OpenAI embedder
func NewOpenAIEmbedder(cfg *config.OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  openai.NewClient(cfg.APIKey),
		model:   openai.EmbeddingModel(cfg.EmbeddingModel),
		timeout: cfg.RequestTimeout,
	}
}

// Embed implements Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response is empty")
	}

	return resp.Data[0].Embedding, nil
}
