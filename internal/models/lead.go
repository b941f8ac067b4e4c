package models

import (
	"time"

	"github.com/google/uuid"
)

// LeadType represents the kind of opportunity extracted from a conversation
type LeadType string

const (
	LeadTypeOrder   LeadType = "order"
	LeadTypeBooking LeadType = "booking"
	LeadTypeInquiry LeadType = "inquiry"
)

// ValidLeadType reports whether t is a known lead type.
func ValidLeadType(t LeadType) bool {
	switch t {
	case LeadTypeOrder, LeadTypeBooking, LeadTypeInquiry:
		return true
	}
	return false
}

// LeadStatus represents the follow-up state of a lead
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusConverted LeadStatus = "converted"
)

// ValidLeadStatus reports whether s is a known lead status.
func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusConverted:
		return true
	}
	return false
}

// Lead is a structured sales or service opportunity extracted from a
// conversation. Initial status is always new.
type Lead struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	TenantID       uuid.UUID `json:"tenantId" db:"tenant_id"`
	ConversationID uuid.UUID `json:"conversationId" db:"conversation_id"`

	Type   LeadType   `json:"type" db:"type"`
	Status LeadStatus `json:"status" db:"status"`

	CustomerName  string    `json:"customerName" db:"customer_name"`
	CustomerPhone string    `json:"customerPhone" db:"customer_phone"`
	Details       Variables `json:"details" db:"details"`
}
