package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *models.Tenant) error
	DeleteTenant(ctx context.Context, id uuid.UUID) error
	ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error)

	// Settings methods
	GetGlobalSettings(ctx context.Context) (*models.Settings, error)
	UpsertGlobalSettings(ctx context.Context, settings *models.Settings) error
	GetSettingsOverride(ctx context.Context, tenantID uuid.UUID) (*models.SettingsOverride, error)
	UpsertSettingsOverride(ctx context.Context, override *models.SettingsOverride) error

	// Conversation methods
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetActiveConversation(ctx context.Context, tenantID uuid.UUID, recipientID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, tenantID uuid.UUID, status *models.ConversationStatus, limit, offset int) ([]*models.Conversation, int64, error)
	// ListSweepCandidates returns active conversations that are idle since
	// before idleBefore or have been explicitly ended.
	ListSweepCandidates(ctx context.Context, tenantID *uuid.UUID, idleBefore time.Time) ([]*models.Conversation, error)
	// TransitionConversation moves a conversation from one status to another
	// only if it is still in the from status, and reports whether this call
	// performed the transition. Overlapping sweeps race harmlessly: the
	// loser's update is a no-op.
	TransitionConversation(ctx context.Context, id uuid.UUID, from, to models.ConversationStatus, finalizedAt time.Time) (bool, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	EndConversation(ctx context.Context, id uuid.UUID, at time.Time) error

	// Message methods
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error)
	// ListRecentMessages returns the newest limit messages of a conversation
	// in chronological order.
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)

	// Knowledge methods
	ReplaceKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, chunks []*models.KnowledgeChunk) error
	ListRecentKnowledgeChunks(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.KnowledgeChunk, error)

	// Lead methods
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	GetLeadByConversation(ctx context.Context, conversationID uuid.UUID) (*models.Lead, error)
	ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Lead, int64, error)
	UpdateLeadStatus(ctx context.Context, id uuid.UUID, status models.LeadStatus) error

	// Close the store
	Close() error
}
