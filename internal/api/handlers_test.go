package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow-server/leadflow-server/internal/batch"
	"github.com/leadflow-server/leadflow-server/internal/config"
	"github.com/leadflow-server/leadflow-server/internal/knowledge"
	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/processor"
	"github.com/leadflow-server/leadflow-server/internal/ratelimit"
	"github.com/leadflow-server/leadflow-server/internal/responder"
	"github.com/leadflow-server/leadflow-server/internal/settings"
	"github.com/leadflow-server/leadflow-server/internal/storage"
	"github.com/leadflow-server/leadflow-server/pkg/crypto"
)

const (
	testBatchSecret  = "batch-secret"
	testGatewayToken = "gateway-token"
	adminEmail       = "admin@acme.test"
	memberEmail      = "member@acme.test"
	testPassword     = "correct-horse-battery"
)

type apiCompleter struct{ output string }

func (c *apiCompleter) Complete(ctx context.Context, history []*models.Message, knowledgeContext string, eff models.Settings) (string, error) {
	return c.output, nil
}

type apiEmbedder struct{}

func (apiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type apiSearcher struct{}

func (apiSearcher) Search(ctx context.Context, tenantID uuid.UUID, vector []float32, minScore float32, limit int) ([]knowledge.SearchResult, error) {
	return nil, nil
}

func (apiSearcher) Replace(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error {
	return nil
}

func (apiSearcher) Close() error { return nil }

type apiSender struct{}

func (apiSender) Send(ctx context.Context, recipientID, text string) error { return nil }

type apiFixture struct {
	server   *RESTServer
	store    *storage.MemoryStore
	limiter  *ratelimit.Limiter
	tenantID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Name = "leadflow-server"
	cfg.JWT.Secret = "test-jwt-secret"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = 24 * time.Hour
	cfg.Batch.Secret = testBatchSecret
	cfg.Gateway.Token = testGatewayToken
	cfg.Admin.Emails = adminEmail
	cfg.Settings.CacheTTL = time.Millisecond

	store := storage.NewMemoryStore()
	tenant := &models.Tenant{Name: "Acme Flowers", IsActive: true}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))

	for _, u := range []struct {
		email string
		admin bool
	}{
		{adminEmail, true},
		{memberEmail, false},
	} {
		hash, err := crypto.HashPassword(testPassword)
		require.NoError(t, err)
		require.NoError(t, store.CreateUser(context.Background(), &models.User{
			Email:        u.email,
			Username:     u.email,
			PasswordHash: hash,
			IsAdmin:      u.admin,
			IsActive:     true,
		}))
	}

	resolver := settings.NewResolver(store, cfg.Settings.CacheTTL)
	limiter := ratelimit.NewLimiter()
	generator := responder.NewGenerator(&apiCompleter{output: "Sure thing!"}, store)
	retriever := knowledge.NewRetriever(apiEmbedder{}, apiSearcher{}, store)
	indexer := knowledge.NewIndexer(apiEmbedder{}, apiSearcher{}, store)
	msgProc := processor.NewProcessor(store, resolver, limiter, retriever, generator, apiSender{})
	batchProc := batch.NewProcessor(store, resolver, generator)

	server := NewRESTServer(cfg, store, resolver, limiter, batchProc, msgProc, indexer)

	return &apiFixture{server: server, store: store, limiter: limiter, tenantID: tenant.ID}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginAndCurrentUser(t *testing.T) {
	f := newAPIFixture(t)

	token := f.login(t, adminEmail)

	rec := f.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, adminEmail, user.Email)
	assert.True(t, user.IsAdmin)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/tenants", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/tenants", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSettingsReadAndWrite(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	// Effective global settings are seeded with defaults on first read.
	rec := f.do(t, http.MethodGet, "/api/v1/settings", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var eff models.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eff))
	assert.Equal(t, models.DefaultSettings().RateLimitMaxMessages, eff.RateLimitMaxMessages)

	// Global write.
	rec = f.do(t, http.MethodPut, "/api/v1/settings", admin, map[string]interface{}{
		"rateLimitMaxMessages": 42,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Tenant override; other fields inherit the new global value.
	rec = f.do(t, http.MethodPut, "/api/v1/settings", admin, map[string]interface{}{
		"tenantId":     f.tenantID,
		"systemPrompt": "You are the Acme assistant.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/settings?tenantId="+f.tenantID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eff))
	assert.Equal(t, 42, eff.RateLimitMaxMessages)
	assert.Equal(t, "You are the Acme assistant.", eff.SystemPrompt)
}

func TestSettingsWriteRequiresAllowlistedAdmin(t *testing.T) {
	f := newAPIFixture(t)
	member := f.login(t, memberEmail)

	rec := f.do(t, http.MethodPut, "/api/v1/settings", member, map[string]interface{}{
		"rateLimitMaxMessages": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSettingsUnknownTenant(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	rec := f.do(t, http.MethodGet, "/api/v1/settings?tenantId="+uuid.NewString(), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/settings", admin, map[string]interface{}{
		"tenantId":             uuid.New(),
		"rateLimitMaxMessages": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)
	sender := f.tenantID.String()

	rec := f.do(t, http.MethodGet, "/api/v1/ratelimit", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	url := fmt.Sprintf("/api/v1/ratelimit?sender=%s&recipient=alice", sender)
	rec = f.do(t, http.MethodGet, url, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var decision ratelimit.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, models.DefaultSettings().RateLimitMaxMessages, decision.Remaining)

	rec = f.do(t, http.MethodPost, "/api/v1/ratelimit/reset", admin, map[string]string{
		"recipient": "alice",
		"sender":    sender,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var reset ratelimit.ResetResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	assert.True(t, reset.Success)
	assert.Equal(t, "no windows found", reset.Message)

	rec = f.do(t, http.MethodDelete, "/api/v1/ratelimit?recipient=alice", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInboundWebhook(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]interface{}{
		"tenantId":    f.tenantID,
		"recipientId": "alice",
		"content":     "do you deliver on sundays?",
	}

	rec := f.do(t, http.MethodPost, "/api/v1/messages/inbound", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/messages/inbound", testGatewayToken, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result processor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Sure thing!", result.Reply)
	assert.False(t, result.RateLimited)

	// Unknown tenant maps to 404.
	body["tenantId"] = uuid.New()
	rec = f.do(t, http.MethodPost, "/api/v1/messages/inbound", testGatewayToken, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchRunAuthorization(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/batch/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/batch/run", "wrong-secret", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/batch/run", testBatchSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result batch.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Processed)
}

func TestBatchRunTenantErrors(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, "/api/v1/batch/run?tenantId="+uuid.NewString(), testBatchSecret, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Disable scheduling for the tenant, the sweep is refused with 403.
	rec = f.do(t, http.MethodPut, "/api/v1/settings", admin, map[string]interface{}{
		"tenantId":          f.tenantID,
		"schedulingEnabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/batch/run?tenantId="+f.tenantID.String(), testBatchSecret, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBatchHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/batch/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantCRUD(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, "/api/v1/tenants", admin, map[string]string{
		"name":         "Beta Bikes",
		"contactEmail": "owner@betabikes.test",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var tenant models.Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	require.NotEqual(t, uuid.Nil, tenant.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/tenants/"+tenant.ID.String(), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/tenants/"+tenant.ID.String(), admin, map[string]string{
		"name": "Beta Bikes GmbH",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tenant))
	assert.Equal(t, "Beta Bikes GmbH", tenant.Name)

	rec = f.do(t, http.MethodDelete, "/api/v1/tenants/"+tenant.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/tenants/"+tenant.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantValidation(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, "/api/v1/tenants", admin, map[string]string{"name": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeReplace(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)
	base := "/api/v1/tenants/" + f.tenantID.String() + "/knowledge"

	rec := f.do(t, http.MethodPut, base, admin, map[string]interface{}{
		"snippets": []string{"We open at 9am.", "", "Delivery is free above 50 euro."},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Chunks int `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Chunks)

	rec = f.do(t, http.MethodGet, base, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	// Unknown tenant.
	rec = f.do(t, http.MethodPut, "/api/v1/tenants/"+uuid.NewString()+"/knowledge", admin, map[string]interface{}{
		"snippets": []string{"x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	// Drive a conversation through the webhook.
	rec := f.do(t, http.MethodPost, "/api/v1/messages/inbound", testGatewayToken, map[string]interface{}{
		"tenantId":    f.tenantID,
		"recipientId": "alice",
		"content":     "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result processor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = f.do(t, http.MethodGet, "/api/v1/conversations?tenantId="+f.tenantID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var convList struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convList))
	assert.EqualValues(t, 1, convList.Total)

	rec = f.do(t, http.MethodGet, "/api/v1/conversations/"+result.ConversationID.String()+"/messages", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var msgList struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgList))
	assert.EqualValues(t, 2, msgList.Total)

	rec = f.do(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID.String()+"/end", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.NotNil(t, conv.EndedAt)
	assert.Equal(t, models.ConversationActive, conv.Status)
}

func TestEndConversationReleasesRateLimitWindow(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	rec := f.do(t, http.MethodPost, "/api/v1/messages/inbound", testGatewayToken, map[string]interface{}{
		"tenantId":    f.tenantID,
		"recipientId": "alice",
		"content":     "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result processor.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	// Exhaust the pair's window.
	eff := models.DefaultSettings()
	for i := 0; i < eff.RateLimitMaxMessages; i++ {
		f.limiter.CheckAndConsume(f.tenantID.String(), "alice", eff)
	}
	require.False(t, f.limiter.Peek(f.tenantID.String(), "alice", eff).Allowed)

	rec = f.do(t, http.MethodPost, "/api/v1/conversations/"+result.ConversationID.String()+"/end", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Ending the conversation cleared the pair's window.
	assert.True(t, f.limiter.Peek(f.tenantID.String(), "alice", eff).Allowed)
}

func TestLeadEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, adminEmail)

	lead := &models.Lead{
		TenantID:       f.tenantID,
		ConversationID: uuid.New(),
		Type:           models.LeadTypeOrder,
		Status:         models.LeadStatusNew,
		CustomerName:   "Anna",
	}
	require.NoError(t, f.store.CreateLead(context.Background(), lead))

	rec := f.do(t, http.MethodGet, "/api/v1/leads?tenantId="+f.tenantID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Total)

	rec = f.do(t, http.MethodPut, "/api/v1/leads/"+lead.ID.String()+"/status", admin, map[string]string{
		"status": "contacted",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.LeadStatusContacted, updated.Status)

	rec = f.do(t, http.MethodPut, "/api/v1/leads/"+lead.ID.String()+"/status", admin, map[string]string{
		"status": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
