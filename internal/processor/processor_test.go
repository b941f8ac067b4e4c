package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

type fakeRetriever struct {
	context string
	calls   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, tenantID uuid.UUID, query string, eff models.Settings) string {
	f.calls++
	return f.context
}

type fakeGenerator struct {
	reply string
	err   error
	calls int

	gotHistory  int
	gotMessages []string
	gotContext  string
}

func (f *fakeGenerator) Generate(ctx context.Context, conv *models.Conversation, history []*models.Message, knowledgeContext string, eff models.Settings) (string, *models.Lead, error) {
	f.calls++
	f.gotHistory = len(history)
	f.gotMessages = f.gotMessages[:0]
	for _, m := range history {
		f.gotMessages = append(f.gotMessages, m.Content)
	}
	f.gotContext = knowledgeContext
	return f.reply, nil, f.err
}

type fakeSender struct {
	err   error
	sent  []string
	calls int
}

func (f *fakeSender) Send(ctx context.Context, recipientID, text string) error {
	f.calls++
	f.sent = append(f.sent, text)
	return f.err
}

type pipelineFixture struct {
	store     *storage.MemoryStore
	retriever *fakeRetriever
	generator *fakeGenerator
	sender    *fakeSender
	proc      *Processor
	tenantID  uuid.UUID
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	store := storage.NewMemoryStore()
	tenant := &models.Tenant{Name: "Acme", IsActive: true}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))

	retriever := &fakeRetriever{context: "shop knowledge"}
	generator := &fakeGenerator{reply: "Happy to help!"}
	sender := &fakeSender{}
	proc := NewProcessor(
		store,
		settings.NewResolver(store, time.Millisecond),
		ratelimit.NewLimiter(),
		retriever,
		generator,
		sender,
	)

	return &pipelineFixture{
		store:     store,
		retriever: retriever,
		generator: generator,
		sender:    sender,
		proc:      proc,
		tenantID:  tenant.ID,
	}
}

func (f *pipelineFixture) inbound(content string) InboundMessage {
	return InboundMessage{TenantID: f.tenantID, RecipientID: "alice", Content: content}
}

func TestHandleInboundHappyPath(t *testing.T) {
	f := newPipelineFixture(t)

	result, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.NoError(t, err)
	assert.False(t, result.RateLimited)
	assert.Equal(t, "Happy to help!", result.Reply)
	assert.Equal(t, "shop knowledge", f.generator.gotContext)
	assert.Equal(t, []string{"Happy to help!"}, f.sender.sent)

	// Customer message and bot reply are both recorded.
	msgs, total, err := f.store.ListMessages(context.Background(), result.ConversationID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, models.SenderCustomer, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, models.SenderBot, msgs[1].Sender)
}

func TestHandleInboundReusesActiveConversation(t *testing.T) {
	f := newPipelineFixture(t)

	first, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.NoError(t, err)
	second, err := f.proc.HandleInbound(context.Background(), f.inbound("one more thing"))
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The second turn sees the full history.
	assert.Equal(t, 3, f.generator.gotHistory)
}

func TestHandleInboundLongHistoryKeepsNewestMessages(t *testing.T) {
	f := newPipelineFixture(t)

	first, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.NoError(t, err)

	// Preload well past the history window, all older than the opening turn.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		require.NoError(t, f.store.CreateMessage(context.Background(), &models.Message{
			ConversationID: first.ConversationID,
			Sender:         models.SenderCustomer,
			Content:        fmt.Sprintf("filler %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	_, err = f.proc.HandleInbound(context.Background(), f.inbound("what time do you deliver?"))
	require.NoError(t, err)

	// The window is the newest messages, so the turn being answered is the
	// last one the generator sees.
	require.Equal(t, historyLimit, f.generator.gotHistory)
	assert.Equal(t, "what time do you deliver?", f.generator.gotMessages[len(f.generator.gotMessages)-1])
	assert.NotContains(t, f.generator.gotMessages, "filler 0")
}

func TestHandleInboundRateLimited(t *testing.T) {
	f := newPipelineFixture(t)

	// Tighten the tenant's limit to a single message per window.
	one := 1
	admin := settings.NewResolver(f.store, time.Millisecond)
	require.NoError(t, admin.UpsertTenantOverride(context.Background(), &models.SettingsOverride{
		TenantID:             f.tenantID,
		RateLimitMaxMessages: &one,
	}))

	first, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.NoError(t, err)
	require.False(t, first.RateLimited)

	second, err := f.proc.HandleInbound(context.Background(), f.inbound("hello again"))
	require.NoError(t, err)
	assert.True(t, second.RateLimited)
	assert.Empty(t, second.Reply)
	assert.False(t, second.Decision.Allowed)
	assert.False(t, second.Decision.ResetAt.IsZero())

	// The denied turn still records the customer message but generates and
	// sends nothing.
	msgs, total, err := f.store.ListMessages(context.Background(), second.ConversationID, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "hello again", msgs[2].Content)
	assert.Equal(t, 1, f.generator.calls)
	assert.Equal(t, 1, f.sender.calls)
}

func TestHandleInboundUnknownTenant(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.proc.HandleInbound(context.Background(), InboundMessage{
		TenantID:    uuid.New(),
		RecipientID: "alice",
		Content:     "hello",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleInboundRejectsEmptyInput(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.proc.HandleInbound(context.Background(), InboundMessage{TenantID: f.tenantID, RecipientID: "alice"})
	assert.ErrorIs(t, err, storage.ErrInvalidData)

	_, err = f.proc.HandleInbound(context.Background(), InboundMessage{TenantID: f.tenantID, Content: "hello"})
	assert.ErrorIs(t, err, storage.ErrInvalidData)
}

func TestHandleInboundGeneratorFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.generator.err = errors.New("completion service down")

	_, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.Error(t, err)

	// Nothing was sent.
	assert.Equal(t, 0, f.sender.calls)
}

func TestHandleInboundSendFailureStillRecordsReply(t *testing.T) {
	f := newPipelineFixture(t)
	f.sender.err = errors.New("gateway down")

	result, err := f.proc.HandleInbound(context.Background(), f.inbound("hello"))
	require.Error(t, err)
	require.NotNil(t, result)

	msgs, _, listErr := f.store.ListMessages(context.Background(), result.ConversationID, 10, 0)
	require.NoError(t, listErr)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderBot, msgs[1].Sender)
}
