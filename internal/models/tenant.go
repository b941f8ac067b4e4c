package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a business customer of the platform
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	ContactEmail string `json:"contactEmail,omitempty" db:"contact_email"`

	// Status
	IsActive    bool       `json:"isActive" db:"is_active"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty" db:"suspended_at"`
}
