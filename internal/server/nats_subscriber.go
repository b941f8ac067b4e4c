package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/processor"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// NATSSubscriber consumes gateway events from NATS
type NATSSubscriber struct {
	nc      *nats.Conn
	proc    *processor.Processor
	limiter *ratelimit.Limiter
	store   storage.Store
	subs    []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, proc *processor.Processor, limiter *ratelimit.Limiter, store storage.Store) *NATSSubscriber {
	return &NATSSubscriber{
		nc:      nc,
		proc:    proc,
		limiter: limiter,
		store:   store,
		subs:    make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions
func (s *NATSSubscriber) Start(ctx context.Context) error {
	// Inbound customer messages relayed by the gateway bridge
	sub1, err := s.nc.Subscribe("conversations.*.inbound", s.handleInbound)
	if err != nil {
		return fmt.Errorf("subscribe inbound: %w", err)
	}
	s.subs = append(s.subs, sub1)

	// Explicit conversation end events (customer said goodbye, gateway
	// closed the chat, etc.)
	sub2, err := s.nc.Subscribe("conversations.*.ended", s.handleEnded)
	if err != nil {
		return fmt.Errorf("subscribe ended: %w", err)
	}
	s.subs = append(s.subs, sub2)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	// Unsubscribe
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// tenantFromSubject extracts the tenant ID from conversations.<tenant>.<kind>
func tenantFromSubject(subject string) (uuid.UUID, error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 {
		return uuid.Nil, fmt.Errorf("unexpected subject %q", subject)
	}
	return uuid.Parse(parts[1])
}

// handleInbound handles inbound customer messages
func (s *NATSSubscriber) handleInbound(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received inbound message")

	tenantID, err := tenantFromSubject(msg.Subject)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to parse tenant from subject")
		return
	}

	var in struct {
		RecipientID string `json:"recipientId"`
		Content     string `json:"content"`
	}
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal inbound message")
		return
	}

	ctx := context.Background()
	result, err := s.proc.HandleInbound(ctx, processor.InboundMessage{
		TenantID:    tenantID,
		RecipientID: in.RecipientID,
		Content:     in.Content,
	})
	if err != nil {
		log.Error().Err(err).
			Str("tenantId", tenantID.String()).
			Str("recipientId", in.RecipientID).
			Msg("Failed to process inbound message")
		return
	}

	log.Info().
		Str("conversationId", result.ConversationID.String()).
		Bool("rateLimited", result.RateLimited).
		Bool("leadCreated", result.Lead != nil).
		Msg("Inbound message processed")
}

// handleEnded marks the recipient's active conversation as explicitly ended.
// The next sweep finalizes it as completed.
func (s *NATSSubscriber) handleEnded(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Msg("Received conversation end")

	tenantID, err := tenantFromSubject(msg.Subject)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to parse tenant from subject")
		return
	}

	var in struct {
		RecipientID string `json:"recipientId"`
	}
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal end event")
		return
	}

	ctx := context.Background()
	conv, err := s.store.GetActiveConversation(ctx, tenantID, in.RecipientID)
	if err != nil {
		log.Error().Err(err).
			Str("tenantId", tenantID.String()).
			Str("recipientId", in.RecipientID).
			Msg("No active conversation to end")
		return
	}

	if err := s.store.EndConversation(ctx, conv.ID, time.Now()); err != nil {
		log.Error().Err(err).
			Str("conversationId", conv.ID.String()).
			Msg("Failed to end conversation")
		return
	}

	// The pair is done talking, release its window right away.
	s.limiter.Reset(in.RecipientID, tenantID.String())

	log.Info().
		Str("conversationId", conv.ID.String()).
		Msg("Conversation ended")
}
