package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ErrSchedulingDisabled is returned when the effective settings disable
// batch scheduling for the sweep target. No partial work is done.
var ErrSchedulingDisabled = errors.New("scheduling disabled")

// transcriptLimit bounds how many final messages are fed to lead extraction.
const transcriptLimit = 50

// LeadExtractor extracts and persists a lead from a finished conversation's
// transcript.
type LeadExtractor interface {
	ExtractFromTranscript(ctx context.Context, conv *models.Conversation, history []*models.Message, eff models.Settings) (*models.Lead, error)
}

// SweepResult summarizes one sweep execution
type SweepResult struct {
	Processed    int `json:"processed"`
	LeadsCreated int `json:"leadsCreated"`
}

// Processor walks stale conversations, extracts leads, and finalizes them.
// It keeps no run-state of its own: each conversation's status is the only
// cursor, so a crashed or overlapping sweep resumes safely. The conditional
// status transition is the serialization point between overlapping sweeps.
type Processor struct {
	store     storage.Store
	resolver  *settings.Resolver
	extractor LeadExtractor
	now       func() time.Time
}

// NewProcessor creates a new batch processor
func NewProcessor(store storage.Store, resolver *settings.Resolver, extractor LeadExtractor) *Processor {
	return &Processor{
		store:     store,
		resolver:  resolver,
		extractor: extractor,
		now:       time.Now,
	}
}

// RunSweep sweeps candidate conversations for one tenant, or for all
// tenants when tenantID is nil. Failure on one conversation is logged and
// does not abort the sweep; it is retried on the next invocation.
func (p *Processor) RunSweep(ctx context.Context, tenantID *uuid.UUID) (SweepResult, error) {
	eff, err := p.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return SweepResult{}, err
	}

	if !eff.SchedulingEnabled {
		return SweepResult{}, ErrSchedulingDisabled
	}

	now := p.now()
	idleBefore := now.Add(-eff.IdleThreshold())

	candidates, err := p.store.ListSweepCandidates(ctx, tenantID, idleBefore)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list sweep candidates: %w", err)
	}

	var result SweepResult
	for _, conv := range candidates {
		leadCreated, won, err := p.finalize(ctx, conv, eff)
		if err != nil {
			log.Error().Err(err).
				Str("conversationId", conv.ID.String()).
				Msg("Failed to finalize conversation, will retry next sweep")
			continue
		}
		if !won {
			// A concurrent sweep got there first.
			continue
		}

		result.Processed++
		if leadCreated {
			result.LeadsCreated++
		}
	}

	log.Info().
		Int("processed", result.Processed).
		Int("leadsCreated", result.LeadsCreated).
		Msg("Sweep finished")

	return result, nil
}

// finalize extracts a lead if none exists yet and performs the conditional
// status transition for one conversation.
func (p *Processor) finalize(ctx context.Context, conv *models.Conversation, eff models.Settings) (leadCreated, won bool, err error) {
	if _, err := p.store.GetLeadByConversation(ctx, conv.ID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return false, false, fmt.Errorf("get lead: %w", err)
		}

		// Extraction reads the tail of the transcript: the closing turns
		// are where contact details land.
		msgs, err := p.store.ListRecentMessages(ctx, conv.ID, transcriptLimit)
		if err != nil {
			return false, false, fmt.Errorf("list recent messages: %w", err)
		}

		if len(msgs) > 0 {
			lead, err := p.extractor.ExtractFromTranscript(ctx, conv, msgs, eff)
			if err != nil {
				return false, false, fmt.Errorf("extract lead: %w", err)
			}
			leadCreated = lead != nil
		}
	}

	target := models.ConversationArchived
	if conv.EndedAt != nil {
		target = models.ConversationCompleted
	}

	won, err = p.store.TransitionConversation(ctx, conv.ID, models.ConversationActive, target, p.now())
	if err != nil {
		return leadCreated, false, fmt.Errorf("transition conversation: %w", err)
	}

	return leadCreated, won, nil
}
