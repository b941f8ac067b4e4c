package responder

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// Generator produces grounded replies and owns lead persistence: when a
// reply carries a parsed lead marker the lead is saved immediately, before
// the reply is handed back to the caller.
type Generator struct {
	completer Completer
	store     storage.Store
}

// NewGenerator creates a new response generator
func NewGenerator(completer Completer, store storage.Store) *Generator {
	return &Generator{
		completer: completer,
		store:     store,
	}
}

// Generate produces a reply for the conversation. The returned lead is nil
// when the model emitted no valid marker.
func (g *Generator) Generate(ctx context.Context, conv *models.Conversation, history []*models.Message, knowledgeContext string, eff models.Settings) (string, *models.Lead, error) {
	raw, err := g.completer.Complete(ctx, history, knowledgeContext, eff)
	if err != nil {
		return "", nil, fmt.Errorf("complete: %w", err)
	}

	reply, lead, err := g.handleExtraction(ctx, conv, raw)
	if err != nil {
		return "", nil, err
	}

	return reply, lead, nil
}

// handleExtraction strips the lead marker from raw output and persists a
// parsed lead against the conversation.
func (g *Generator) handleExtraction(ctx context.Context, conv *models.Conversation, raw string) (string, *models.Lead, error) {
	reply, extraction := ExtractLead(raw)

	switch extraction.Outcome {
	case NoLead:
		return reply, nil, nil

	case MalformedLead:
		log.Warn().
			Str("conversationId", conv.ID.String()).
			Str("marker", extraction.Raw).
			Msg("Discarding malformed lead marker")
		return reply, nil, nil

	case ParsedLead:
		lead := &models.Lead{
			TenantID:       conv.TenantID,
			ConversationID: conv.ID,
			Type:           extraction.Payload.Type,
			Status:         models.LeadStatusNew,
			CustomerName:   extraction.Payload.CustomerName,
			CustomerPhone:  extraction.Payload.CustomerPhone,
			Details:        models.Variables(extraction.Payload.Details),
		}

		if err := g.store.CreateLead(ctx, lead); err != nil {
			return "", nil, fmt.Errorf("create lead: %w", err)
		}

		log.Info().
			Str("conversationId", conv.ID.String()).
			Str("leadId", lead.ID.String()).
			Str("type", string(lead.Type)).
			Msg("Lead extracted")

		return reply, lead, nil
	}

	return reply, nil, nil
}

// ExtractFromTranscript runs lead extraction over a finished conversation's
// transcript. It asks the model solely for a lead marker and persists the
// result; a NONE answer or malformed marker yields no lead.
func (g *Generator) ExtractFromTranscript(ctx context.Context, conv *models.Conversation, history []*models.Message, eff models.Settings) (*models.Lead, error) {
	prompt := eff
	prompt.SystemPrompt = "Review the conversation transcript. If the customer committed to an order, a booking, or a concrete inquiry, respond with exactly one marker of the form " +
		`[[LEAD]]{"type":"order|booking|inquiry","customer_name":"...","customer_phone":"...","details":{}}[[/LEAD]]` +
		" and nothing else. If there is no such commitment, respond with NONE."

	raw, err := g.completer.Complete(ctx, history, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	_, lead, err := g.handleExtraction(ctx, conv, raw)
	return lead, err
}
