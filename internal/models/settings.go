package models

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the full behavioral configuration for a tenant. The global
// record is total: every field always has a value, so a merged result is
// total too.
type Settings struct {
	// Rate limiting
	RateLimitMaxMessages   int `json:"rateLimitMaxMessages" db:"rate_limit_max_messages"`
	RateLimitWindowSeconds int `json:"rateLimitWindowSeconds" db:"rate_limit_window_seconds"`

	// Batch scheduling
	SchedulingEnabled    bool `json:"schedulingEnabled" db:"scheduling_enabled"`
	IdleThresholdSeconds int  `json:"idleThresholdSeconds" db:"idle_threshold_seconds"`

	// Response generation
	SimilarityThreshold float32 `json:"similarityThreshold" db:"similarity_threshold"`
	MaxContextSnippets  int     `json:"maxContextSnippets" db:"max_context_snippets"`
	SystemPrompt        string  `json:"systemPrompt" db:"system_prompt"`

	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// RateLimitWindow returns the rate limit window as a duration.
func (s *Settings) RateLimitWindow() time.Duration {
	return time.Duration(s.RateLimitWindowSeconds) * time.Second
}

// IdleThreshold returns the idle threshold as a duration.
func (s *Settings) IdleThreshold() time.Duration {
	return time.Duration(s.IdleThresholdSeconds) * time.Second
}

// DefaultSettings returns the built-in global defaults, used to seed the
// global record when none has been persisted yet.
func DefaultSettings() Settings {
	return Settings{
		RateLimitMaxMessages:   10,
		RateLimitWindowSeconds: 60,
		SchedulingEnabled:      true,
		IdleThresholdSeconds:   6 * 3600,
		SimilarityThreshold:    0.75,
		MaxContextSnippets:     5,
		SystemPrompt:           "You are a helpful customer support assistant.",
	}
}

// SettingsOverride is a sparse per-tenant fragment. Nil fields inherit the
// global value; merge happens only at read time.
type SettingsOverride struct {
	TenantID uuid.UUID `json:"tenantId" db:"tenant_id"`

	RateLimitMaxMessages   *int     `json:"rateLimitMaxMessages,omitempty" db:"rate_limit_max_messages"`
	RateLimitWindowSeconds *int     `json:"rateLimitWindowSeconds,omitempty" db:"rate_limit_window_seconds"`
	SchedulingEnabled      *bool    `json:"schedulingEnabled,omitempty" db:"scheduling_enabled"`
	IdleThresholdSeconds   *int     `json:"idleThresholdSeconds,omitempty" db:"idle_threshold_seconds"`
	SimilarityThreshold    *float32 `json:"similarityThreshold,omitempty" db:"similarity_threshold"`
	MaxContextSnippets     *int     `json:"maxContextSnippets,omitempty" db:"max_context_snippets"`
	SystemPrompt           *string  `json:"systemPrompt,omitempty" db:"system_prompt"`

	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
