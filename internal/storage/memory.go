package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// MemoryStore is an in-memory Store implementation used in tests and for
// local development without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*models.User
	tenants   map[uuid.UUID]*models.Tenant
	global    *models.Settings
	overrides map[uuid.UUID]*models.SettingsOverride
	convs     map[uuid.UUID]*models.Conversation
	messages  map[uuid.UUID][]*models.Message
	chunks    map[uuid.UUID][]*models.KnowledgeChunk
	leads     map[uuid.UUID]*models.Lead
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]*models.User),
		tenants:   make(map[uuid.UUID]*models.Tenant),
		overrides: make(map[uuid.UUID]*models.SettingsOverride),
		convs:     make(map[uuid.UUID]*models.Conversation),
		messages:  make(map[uuid.UUID][]*models.Message),
		chunks:    make(map[uuid.UUID][]*models.KnowledgeChunk),
		leads:     make(map[uuid.UUID]*models.Lead),
	}
}

// BeginTx returns the store itself; the in-memory store is not transactional.
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// ========== User methods ==========

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateKey
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// ========== Tenant methods ==========

func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if _, ok := s.tenants[tenant.ID]; ok {
		return ErrDuplicateKey
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tenant, ok := s.tenants[id]; ok {
		cp := *tenant
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, id)
	return nil
}

func (s *MemoryStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	return paginate(all, limit, offset), int64(len(all)), nil
}

// ========== Settings methods ==========

func (s *MemoryStore) GetGlobalSettings(ctx context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.global == nil {
		return nil, ErrNotFound
	}
	cp := *s.global
	return &cp, nil
}

func (s *MemoryStore) UpsertGlobalSettings(ctx context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now()
	cp := *settings
	s.global = &cp
	return nil
}

func (s *MemoryStore) GetSettingsOverride(ctx context.Context, tenantID uuid.UUID) (*models.SettingsOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.overrides[tenantID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpsertSettingsOverride(ctx context.Context, override *models.SettingsOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	override.UpdatedAt = time.Now()
	cp := *override
	s.overrides[override.TenantID] = &cp
	return nil
}

// ========== Conversation methods ==========

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Status == "" {
		conv.Status = models.ConversationActive
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = now
	}

	cp := *conv
	s.convs[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if conv, ok := s.convs[id]; ok {
		cp := *conv
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetActiveConversation(ctx context.Context, tenantID uuid.UUID, recipientID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Conversation
	for _, conv := range s.convs {
		if conv.TenantID != tenantID || conv.RecipientID != recipientID {
			continue
		}
		if conv.Status != models.ConversationActive {
			continue
		}
		if latest == nil || conv.LastActivityAt.After(latest.LastActivityAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, tenantID uuid.UUID, status *models.ConversationStatus, limit, offset int) ([]*models.Conversation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Conversation
	for _, conv := range s.convs {
		if conv.TenantID != tenantID {
			continue
		}
		if status != nil && conv.Status != *status {
			continue
		}
		cp := *conv
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastActivityAt.After(all[j].LastActivityAt) })

	return paginate(all, limit, offset), int64(len(all)), nil
}

func (s *MemoryStore) ListSweepCandidates(ctx context.Context, tenantID *uuid.UUID, idleBefore time.Time) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range s.convs {
		if conv.Status != models.ConversationActive {
			continue
		}
		if tenantID != nil && conv.TenantID != *tenantID {
			continue
		}
		if conv.LastActivityAt.Before(idleBefore) || conv.EndedAt != nil {
			cp := *conv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	return out, nil
}

func (s *MemoryStore) TransitionConversation(ctx context.Context, id uuid.UUID, from, to models.ConversationStatus, finalizedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok || conv.Status != from {
		return false, nil
	}
	conv.Status = to
	conv.FinalizedAt = &finalizedAt
	conv.UpdatedAt = finalizedAt
	return true, nil
}

func (s *MemoryStore) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.LastActivityAt = at
	conv.UpdatedAt = at
	return nil
}

func (s *MemoryStore) EndConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok || conv.Status != models.ConversationActive {
		return ErrNotFound
	}
	conv.EndedAt = &at
	conv.UpdatedAt = at
	return nil
}

// ========== Message methods ==========

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	all := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	return paginate(all, limit, offset), int64(len(all)), nil
}

func (s *MemoryStore) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	all := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// ========== Knowledge methods ==========

func (s *MemoryStore) ReplaceKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	replaced := make([]*models.KnowledgeChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		chunk.TenantID = tenantID
		cp := *chunk
		replaced = append(replaced, &cp)
	}
	s.chunks[tenantID] = replaced
	return nil
}

func (s *MemoryStore) ListRecentKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunks[tenantID]
	all := make([]*models.KnowledgeChunk, 0, len(chunks))
	for _, c := range chunks {
		cp := *c
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ========== Lead methods ==========

func (s *MemoryStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

func (s *MemoryStore) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lead, ok := s.leads[id]; ok {
		cp := *lead
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetLeadByConversation(ctx context.Context, conversationID uuid.UUID) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest *models.Lead
	for _, lead := range s.leads {
		if lead.ConversationID != conversationID {
			continue
		}
		if earliest == nil || lead.CreatedAt.Before(earliest.CreatedAt) {
			earliest = lead
		}
	}
	if earliest == nil {
		return nil, ErrNotFound
	}
	cp := *earliest
	return &cp, nil
}

func (s *MemoryStore) ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Lead, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Lead
	for _, lead := range s.leads {
		if lead.TenantID != tenantID {
			continue
		}
		cp := *lead
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	return paginate(all, limit, offset), int64(len(all)), nil
}

func (s *MemoryStore) UpdateLeadStatus(ctx context.Context, id uuid.UUID, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	lead.Status = status
	lead.UpdatedAt = time.Now()
	return nil
}

func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
