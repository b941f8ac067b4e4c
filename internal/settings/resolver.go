package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

const globalCacheKey = "global"

// Resolver resolves effective settings by merging the global record with a
// tenant's sparse override fragment. Reads are cached with a short TTL;
// invalidation on admin writes is best-effort.
type Resolver struct {
	store storage.Store
	cache *gocache.Cache
}

// NewResolver creates a new settings resolver
func NewResolver(store storage.Store, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		store: store,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Resolve returns the effective settings for a tenant. With a nil tenant id
// it returns the global settings as-is. Returns storage.ErrNotFound only
// when the tenant itself is unknown; a missing override fragment simply
// inherits every global value.
func (r *Resolver) Resolve(ctx context.Context, tenantID *uuid.UUID) (models.Settings, error) {
	key := globalCacheKey
	if tenantID != nil {
		key = tenantID.String()
	}

	if cached, found := r.cache.Get(key); found {
		return cached.(models.Settings), nil
	}

	global, err := r.loadGlobal(ctx)
	if err != nil {
		return models.Settings{}, err
	}

	if tenantID == nil {
		r.cache.SetDefault(globalCacheKey, global)
		return global, nil
	}

	if _, err := r.store.GetTenant(ctx, *tenantID); err != nil {
		return models.Settings{}, err
	}

	override, err := r.store.GetSettingsOverride(ctx, *tenantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.Settings{}, fmt.Errorf("get settings override: %w", err)
	}

	effective := Merge(global, override)
	r.cache.SetDefault(key, effective)

	return effective, nil
}

// loadGlobal reads the global record, seeding the built-in defaults when
// none has been persisted yet.
func (r *Resolver) loadGlobal(ctx context.Context) (models.Settings, error) {
	global, err := r.store.GetGlobalSettings(ctx)
	if err == nil {
		return *global, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Settings{}, fmt.Errorf("get global settings: %w", err)
	}

	defaults := models.DefaultSettings()
	if err := r.store.UpsertGlobalSettings(ctx, &defaults); err != nil {
		return models.Settings{}, fmt.Errorf("seed global settings: %w", err)
	}

	log.Info().Msg("Seeded global settings with built-in defaults")
	return defaults, nil
}

// UpsertGlobal persists the global settings record verbatim
func (r *Resolver) UpsertGlobal(ctx context.Context, settings *models.Settings) error {
	if err := r.store.UpsertGlobalSettings(ctx, settings); err != nil {
		return err
	}

	// A global change affects every tenant's merge result.
	r.cache.Flush()
	return nil
}

// UpsertTenantOverride persists a tenant's override fragment verbatim.
// Returns storage.ErrNotFound when the tenant is unknown.
func (r *Resolver) UpsertTenantOverride(ctx context.Context, override *models.SettingsOverride) error {
	if _, err := r.store.GetTenant(ctx, override.TenantID); err != nil {
		return err
	}

	if err := r.store.UpsertSettingsOverride(ctx, override); err != nil {
		return err
	}

	r.cache.Delete(override.TenantID.String())
	return nil
}

// Merge combines the total global settings with a sparse override fragment,
// field by field, override winning. A nil fragment inherits everything. The
// result is always fully populated because the global record is total.
func Merge(global models.Settings, override *models.SettingsOverride) models.Settings {
	effective := global
	if override == nil {
		return effective
	}

	if override.RateLimitMaxMessages != nil {
		effective.RateLimitMaxMessages = *override.RateLimitMaxMessages
	}
	if override.RateLimitWindowSeconds != nil {
		effective.RateLimitWindowSeconds = *override.RateLimitWindowSeconds
	}
	if override.SchedulingEnabled != nil {
		effective.SchedulingEnabled = *override.SchedulingEnabled
	}
	if override.IdleThresholdSeconds != nil {
		effective.IdleThresholdSeconds = *override.IdleThresholdSeconds
	}
	if override.SimilarityThreshold != nil {
		effective.SimilarityThreshold = *override.SimilarityThreshold
	}
	if override.MaxContextSnippets != nil {
		effective.MaxContextSnippets = *override.MaxContextSnippets
	}
	if override.SystemPrompt != nil {
		effective.SystemPrompt = *override.SystemPrompt
	}

	return effective
}
