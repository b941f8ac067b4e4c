package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/gateway"
	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// historyLimit bounds how much conversation history is fed to generation.
const historyLimit = 20

// ContextRetriever returns grounding context for a query, possibly empty
type ContextRetriever interface {
	Retrieve(ctx context.Context, tenantID uuid.UUID, query string, eff models.Settings) string
}

// ReplyGenerator produces a grounded reply and persists any extracted lead
type ReplyGenerator interface {
	Generate(ctx context.Context, conv *models.Conversation, history []*models.Message, knowledgeContext string, eff models.Settings) (string, *models.Lead, error)
}

// InboundMessage is one customer message arriving from the gateway
type InboundMessage struct {
	TenantID    uuid.UUID `json:"tenantId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
}

// Result summarizes pipeline handling of one inbound message
type Result struct {
	ConversationID uuid.UUID          `json:"conversationId"`
	Reply          string             `json:"reply,omitempty"`
	RateLimited    bool               `json:"rateLimited"`
	Decision       ratelimit.Decision `json:"rateLimit"`
	Lead           *models.Lead       `json:"lead,omitempty"`
}

// Processor runs the inbound message pipeline: rate limit, settings
// resolution, knowledge retrieval, reply generation, outbound send.
type Processor struct {
	store     storage.Store
	resolver  *settings.Resolver
	limiter   *ratelimit.Limiter
	retriever ContextRetriever
	generator ReplyGenerator
	sender    gateway.Sender
}

// NewProcessor creates a new message processor
func NewProcessor(store storage.Store, resolver *settings.Resolver, limiter *ratelimit.Limiter, retriever ContextRetriever, generator ReplyGenerator, sender gateway.Sender) *Processor {
	return &Processor{
		store:     store,
		resolver:  resolver,
		limiter:   limiter,
		retriever: retriever,
		generator: generator,
		sender:    sender,
	}
}

// HandleInbound processes one customer message end to end. The customer
// message is always recorded; the reply is skipped when the pair's rate
// limit window is exhausted.
func (p *Processor) HandleInbound(ctx context.Context, in InboundMessage) (*Result, error) {
	if in.Content == "" || in.RecipientID == "" {
		return nil, storage.ErrInvalidData
	}

	eff, err := p.resolver.Resolve(ctx, &in.TenantID)
	if err != nil {
		return nil, err
	}

	conv, err := p.findOrCreateConversation(ctx, in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderCustomer,
		Content:        in.Content,
	}
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := p.store.TouchConversation(ctx, conv.ID, now); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	result := &Result{ConversationID: conv.ID}

	// Every outbound send is gated, regardless of caller.
	decision := p.limiter.CheckAndConsume(in.TenantID.String(), in.RecipientID, eff)
	result.Decision = decision
	if !decision.Allowed {
		result.RateLimited = true
		log.Warn().
			Str("tenantId", in.TenantID.String()).
			Str("recipientId", in.RecipientID).
			Time("resetAt", decision.ResetAt).
			Msg("Outbound send rate limited, skipping reply")
		return result, nil
	}

	// The newest window, so the message just recorded is always included.
	history, err := p.store.ListRecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	knowledgeContext := p.retriever.Retrieve(ctx, in.TenantID, in.Content, eff)

	reply, lead, err := p.generator.Generate(ctx, conv, history, knowledgeContext, eff)
	if err != nil {
		return nil, fmt.Errorf("generate reply: %w", err)
	}
	result.Reply = reply
	result.Lead = lead

	botMsg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderBot,
		Content:        reply,
	}
	if err := p.store.CreateMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("create bot message: %w", err)
	}

	if err := p.sender.Send(ctx, in.RecipientID, reply); err != nil {
		// The reply is already recorded; delivery is retried by the
		// gateway client, beyond that the failure surfaces to the caller.
		return result, fmt.Errorf("send reply: %w", err)
	}

	return result, nil
}

func (p *Processor) findOrCreateConversation(ctx context.Context, in InboundMessage) (*models.Conversation, error) {
	conv, err := p.store.GetActiveConversation(ctx, in.TenantID, in.RecipientID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get active conversation: %w", err)
	}

	conv = &models.Conversation{
		TenantID:    in.TenantID,
		RecipientID: in.RecipientID,
		Status:      models.ConversationActive,
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	log.Info().
		Str("tenantId", in.TenantID.String()).
		Str("recipientId", in.RecipientID).
		Str("conversationId", conv.ID.String()).
		Msg("Conversation started")

	return conv, nil
}
