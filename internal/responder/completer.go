package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/leadflow-server/leadflow-server/internal/config"
	"github.com/leadflow-server/leadflow-server/internal/models"
)

// Completer produces raw model output for a conversation plus retrieved
// knowledge context.
type Completer interface {
	Complete(ctx context.Context, history []*models.Message, knowledgeContext string, eff models.Settings) (string, error)
}

// OpenAICompleter implements Completer through the OpenAI chat API
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAICompleter creates a new OpenAI completer
func NewOpenAICompleter(cfg *config.OpenAIConfig) *OpenAICompleter {
	return &OpenAICompleter{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.ChatModel,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.RequestTimeout,
	}
}

const leadInstruction = `When the customer commits to an order, a booking, or a concrete inquiry, append exactly one marker of the form [[LEAD]]{"type":"order|booking|inquiry","customer_name":"...","customer_phone":"...","details":{}}[[/LEAD]] after your reply. Otherwise do not emit a marker.`

// Complete implements Completer
func (c *OpenAICompleter) Complete(ctx context.Context, history []*models.Message, knowledgeContext string, eff models.Settings) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	system := eff.SystemPrompt
	if knowledgeContext != "" {
		system += "\n\nUse the following business knowledge to answer:\n" + knowledgeContext
	}
	system += "\n\n" + leadInstruction

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})

	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Sender == models.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response is empty")
	}

	return resp.Choices[0].Message.Content, nil
}
