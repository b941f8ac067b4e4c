package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

type fakeExtractor struct {
	mu            sync.Mutex
	store         storage.Store
	lead          bool
	err           error
	calls         int
	gotTranscript []string
}

func (f *fakeExtractor) ExtractFromTranscript(ctx context.Context, conv *models.Conversation, history []*models.Message, eff models.Settings) (*models.Lead, error) {
	f.mu.Lock()
	f.calls++
	f.gotTranscript = f.gotTranscript[:0]
	for _, m := range history {
		f.gotTranscript = append(f.gotTranscript, m.Content)
	}
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if !f.lead {
		return nil, nil
	}

	lead := &models.Lead{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Type:           models.LeadTypeInquiry,
		Status:         models.LeadStatusNew,
	}
	if err := f.store.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

type sweepFixture struct {
	store     *storage.MemoryStore
	resolver  *settings.Resolver
	extractor *fakeExtractor
	proc      *Processor
	tenantID  uuid.UUID
	now       time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	store := storage.NewMemoryStore()
	tenant := &models.Tenant{Name: "Acme", IsActive: true}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))

	resolver := settings.NewResolver(store, time.Millisecond)
	extractor := &fakeExtractor{store: store, lead: true}
	proc := NewProcessor(store, resolver, extractor)

	now := time.Now()
	proc.now = func() time.Time { return now }

	return &sweepFixture{
		store:     store,
		resolver:  resolver,
		extractor: extractor,
		proc:      proc,
		tenantID:  tenant.ID,
		now:       now,
	}
}

// addConversation creates an active conversation with one customer message,
// idle for the given duration (relative to the fixture clock).
func (f *sweepFixture) addConversation(t *testing.T, idleFor time.Duration, ended bool) *models.Conversation {
	t.Helper()

	conv := &models.Conversation{
		TenantID:    f.tenantID,
		RecipientID: uuid.New().String(),
		Status:      models.ConversationActive,
	}
	require.NoError(t, f.store.CreateConversation(context.Background(), conv))
	require.NoError(t, f.store.CreateMessage(context.Background(), &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderCustomer,
		Content:        "I would like to order flowers",
	}))
	require.NoError(t, f.store.TouchConversation(context.Background(), conv.ID, f.now.Add(-idleFor)))
	if ended {
		require.NoError(t, f.store.EndConversation(context.Background(), conv.ID, f.now.Add(-idleFor)))
	}
	return conv
}

func TestRunSweepArchivesIdleConversations(t *testing.T) {
	f := newSweepFixture(t)
	idle := f.addConversation(t, 7*time.Hour, false)
	fresh := f.addConversation(t, time.Minute, false)

	result, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.LeadsCreated)

	got, err := f.store.GetConversation(context.Background(), idle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationArchived, got.Status)
	assert.NotNil(t, got.FinalizedAt)

	got, err = f.store.GetConversation(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationActive, got.Status)
}

func TestRunSweepCompletesEndedConversations(t *testing.T) {
	f := newSweepFixture(t)
	// Explicitly ended conversations finalize as completed even when not
	// idle past the threshold.
	ended := f.addConversation(t, time.Minute, true)

	result, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	got, err := f.store.GetConversation(context.Background(), ended.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationCompleted, got.Status)
}

func TestRunSweepFeedsTranscriptTail(t *testing.T) {
	f := newSweepFixture(t)
	conv := f.addConversation(t, 7*time.Hour, false)

	// Grow the transcript past the extraction window. The fixture's opening
	// message stays the newest turn.
	base := f.now.Add(-time.Hour)
	for i := 0; i < 60; i++ {
		require.NoError(t, f.store.CreateMessage(context.Background(), &models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderCustomer,
			Content:        fmt.Sprintf("turn %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	_, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)

	// Extraction reads the final messages, ending with the newest one.
	require.Len(t, f.extractor.gotTranscript, transcriptLimit)
	assert.Equal(t, "I would like to order flowers", f.extractor.gotTranscript[transcriptLimit-1])
	assert.Contains(t, f.extractor.gotTranscript, "turn 59")
	assert.NotContains(t, f.extractor.gotTranscript, "turn 0")
}

func TestRunSweepIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	f.addConversation(t, 7*time.Hour, false)

	first, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.LeadsCreated)
}

func TestRunSweepSchedulingDisabled(t *testing.T) {
	f := newSweepFixture(t)
	f.addConversation(t, 7*time.Hour, false)

	disabled := false
	require.NoError(t, f.resolver.UpsertTenantOverride(context.Background(), &models.SettingsOverride{
		TenantID:          f.tenantID,
		SchedulingEnabled: &disabled,
	}))

	_, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	assert.ErrorIs(t, err, ErrSchedulingDisabled)

	// Refusal does no partial work.
	assert.Equal(t, 0, f.extractor.calls)
}

func TestRunSweepUnknownTenant(t *testing.T) {
	f := newSweepFixture(t)

	unknown := uuid.New()
	_, err := f.proc.RunSweep(context.Background(), &unknown)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunSweepSkipsExtractionWhenLeadExists(t *testing.T) {
	f := newSweepFixture(t)
	conv := f.addConversation(t, 7*time.Hour, false)

	require.NoError(t, f.store.CreateLead(context.Background(), &models.Lead{
		TenantID:       f.tenantID,
		ConversationID: conv.ID,
		Type:           models.LeadTypeOrder,
		Status:         models.LeadStatusNew,
	}))

	result, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.LeadsCreated)
	assert.Equal(t, 0, f.extractor.calls)
}

func TestRunSweepErrorIsolation(t *testing.T) {
	f := newSweepFixture(t)
	failing := f.addConversation(t, 8*time.Hour, false)
	healthy := f.addConversation(t, 7*time.Hour, false)

	// Pre-create a lead for the healthy conversation so only the failing one
	// needs extraction.
	require.NoError(t, f.store.CreateLead(context.Background(), &models.Lead{
		TenantID:       f.tenantID,
		ConversationID: healthy.ID,
		Type:           models.LeadTypeOrder,
		Status:         models.LeadStatusNew,
	}))
	f.extractor.err = errors.New("completion service down")

	result, err := f.proc.RunSweep(context.Background(), &f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	// The failed conversation stays active and is retried next sweep.
	got, err := f.store.GetConversation(context.Background(), failing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationActive, got.Status)

	got, err = f.store.GetConversation(context.Background(), healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationArchived, got.Status)
}

func TestConcurrentSweepsDoNotDoubleProcess(t *testing.T) {
	f := newSweepFixture(t)
	const n = 8
	for i := 0; i < n; i++ {
		f.addConversation(t, 7*time.Hour, false)
	}

	var wg sync.WaitGroup
	results := make([]SweepResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.proc.RunSweep(context.Background(), &f.tenantID)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	// The conditional transition is the serialization point: every
	// conversation is counted by exactly one sweep.
	assert.Equal(t, n, results[0].Processed+results[1].Processed)
}
