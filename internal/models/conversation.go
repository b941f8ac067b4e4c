package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus represents the conversation lifecycle state
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationArchived  ConversationStatus = "archived"
)

// SenderClass represents who authored a message
type SenderClass string

const (
	SenderCustomer SenderClass = "customer"
	SenderBot      SenderClass = "bot"
)

// Conversation represents one customer conversation with a tenant
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	TenantID    uuid.UUID `json:"tenantId" db:"tenant_id"`
	RecipientID string    `json:"recipientId" db:"recipient_id"`

	Status         ConversationStatus `json:"status" db:"status"`
	LastActivityAt time.Time          `json:"lastActivityAt" db:"last_activity_at"`

	// EndedAt is set when a user or agent explicitly ends the conversation.
	EndedAt     *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	FinalizedAt *time.Time `json:"finalizedAt,omitempty" db:"finalized_at"`
}

// Message represents one message in a conversation, immutable once created
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	ConversationID uuid.UUID `json:"conversationId" db:"conversation_id"`

	Sender  SenderClass `json:"sender" db:"sender"`
	Content string      `json:"content" db:"content"`
	Read    bool        `json:"read" db:"read"`
}
