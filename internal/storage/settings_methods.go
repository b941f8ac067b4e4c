package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// ========== Settings Methods ==========

// The global settings table holds a single row. The override table holds a
// sparse fragment per tenant: NULL columns inherit the global value at read
// time. Fragments are persisted verbatim; no merging happens at write time.

// GetGlobalSettings gets the global settings record
func (s *PostgresStore) GetGlobalSettings(ctx context.Context) (*models.Settings, error) {
	query := `
        SELECT rate_limit_max_messages, rate_limit_window_seconds,
               scheduling_enabled, idle_threshold_seconds,
               similarity_threshold, max_context_snippets, system_prompt,
               updated_at
        FROM global_settings
        WHERE id = 1`

	settings := &models.Settings{}
	err := s.getDB().QueryRowContext(ctx, query).Scan(
		&settings.RateLimitMaxMessages, &settings.RateLimitWindowSeconds,
		&settings.SchedulingEnabled, &settings.IdleThresholdSeconds,
		&settings.SimilarityThreshold, &settings.MaxContextSnippets,
		&settings.SystemPrompt, &settings.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return settings, nil
}

// UpsertGlobalSettings persists the global settings record
func (s *PostgresStore) UpsertGlobalSettings(ctx context.Context, settings *models.Settings) error {
	settings.UpdatedAt = time.Now()

	query := `
        INSERT INTO global_settings (
            id, rate_limit_max_messages, rate_limit_window_seconds,
            scheduling_enabled, idle_threshold_seconds,
            similarity_threshold, max_context_snippets, system_prompt, updated_at
        ) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            rate_limit_max_messages = EXCLUDED.rate_limit_max_messages,
            rate_limit_window_seconds = EXCLUDED.rate_limit_window_seconds,
            scheduling_enabled = EXCLUDED.scheduling_enabled,
            idle_threshold_seconds = EXCLUDED.idle_threshold_seconds,
            similarity_threshold = EXCLUDED.similarity_threshold,
            max_context_snippets = EXCLUDED.max_context_snippets,
            system_prompt = EXCLUDED.system_prompt,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		settings.RateLimitMaxMessages, settings.RateLimitWindowSeconds,
		settings.SchedulingEnabled, settings.IdleThresholdSeconds,
		settings.SimilarityThreshold, settings.MaxContextSnippets,
		settings.SystemPrompt, settings.UpdatedAt,
	)

	return err
}

// GetSettingsOverride gets a tenant's settings override fragment
func (s *PostgresStore) GetSettingsOverride(ctx context.Context, tenantID uuid.UUID) (*models.SettingsOverride, error) {
	query := `
        SELECT tenant_id, rate_limit_max_messages, rate_limit_window_seconds,
               scheduling_enabled, idle_threshold_seconds,
               similarity_threshold, max_context_snippets, system_prompt,
               updated_at
        FROM tenant_settings_overrides
        WHERE tenant_id = $1`

	override := &models.SettingsOverride{}
	err := s.getDB().QueryRowContext(ctx, query, tenantID).Scan(
		&override.TenantID, &override.RateLimitMaxMessages,
		&override.RateLimitWindowSeconds, &override.SchedulingEnabled,
		&override.IdleThresholdSeconds, &override.SimilarityThreshold,
		&override.MaxContextSnippets, &override.SystemPrompt,
		&override.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return override, nil
}

// UpsertSettingsOverride persists a tenant's settings override fragment verbatim
func (s *PostgresStore) UpsertSettingsOverride(ctx context.Context, override *models.SettingsOverride) error {
	override.UpdatedAt = time.Now()

	query := `
        INSERT INTO tenant_settings_overrides (
            tenant_id, rate_limit_max_messages, rate_limit_window_seconds,
            scheduling_enabled, idle_threshold_seconds,
            similarity_threshold, max_context_snippets, system_prompt, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (tenant_id) DO UPDATE SET
            rate_limit_max_messages = EXCLUDED.rate_limit_max_messages,
            rate_limit_window_seconds = EXCLUDED.rate_limit_window_seconds,
            scheduling_enabled = EXCLUDED.scheduling_enabled,
            idle_threshold_seconds = EXCLUDED.idle_threshold_seconds,
            similarity_threshold = EXCLUDED.similarity_threshold,
            max_context_snippets = EXCLUDED.max_context_snippets,
            system_prompt = EXCLUDED.system_prompt,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		override.TenantID, override.RateLimitMaxMessages,
		override.RateLimitWindowSeconds, override.SchedulingEnabled,
		override.IdleThresholdSeconds, override.SimilarityThreshold,
		override.MaxContextSnippets, override.SystemPrompt, override.UpdatedAt,
	)

	return err
}
