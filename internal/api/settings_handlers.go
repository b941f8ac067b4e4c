package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ========== Settings handlers ==========

// HandleGetSettings returns effective settings: the global record as-is, or
// the global record merged with the tenant's override when tenantId is given.
func (s *RESTServer) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if tid := r.URL.Query().Get("tenantId"); tid != "" {
		id, err := uuid.Parse(tid)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		tenantID = &id
	}

	eff, err := s.resolver.Resolve(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, eff)
}

// HandleUpdateSettings writes settings. Without tenantId the body replaces
// the global record; with tenantId the body is stored verbatim as the
// tenant's sparse override fragment, absent fields inheriting global values.
func (s *RESTServer) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !s.requireSettingsAdmin(w, r) {
		return
	}

	var req struct {
		TenantID *uuid.UUID `json:"tenantId,omitempty"`

		RateLimitMaxMessages   *int     `json:"rateLimitMaxMessages,omitempty" validate:"min=1"`
		RateLimitWindowSeconds *int     `json:"rateLimitWindowSeconds,omitempty" validate:"min=1"`
		SchedulingEnabled      *bool    `json:"schedulingEnabled,omitempty"`
		IdleThresholdSeconds   *int     `json:"idleThresholdSeconds,omitempty" validate:"min=1"`
		SimilarityThreshold    *float32 `json:"similarityThreshold,omitempty" validate:"min=0,max=1"`
		MaxContextSnippets     *int     `json:"maxContextSnippets,omitempty" validate:"min=1"`
		SystemPrompt           *string  `json:"systemPrompt,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.TenantID != nil {
		override := &models.SettingsOverride{
			TenantID:               *req.TenantID,
			RateLimitMaxMessages:   req.RateLimitMaxMessages,
			RateLimitWindowSeconds: req.RateLimitWindowSeconds,
			SchedulingEnabled:      req.SchedulingEnabled,
			IdleThresholdSeconds:   req.IdleThresholdSeconds,
			SimilarityThreshold:    req.SimilarityThreshold,
			MaxContextSnippets:     req.MaxContextSnippets,
			SystemPrompt:           req.SystemPrompt,
		}

		if err := s.resolver.UpsertTenantOverride(r.Context(), override); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.respondError(w, http.StatusNotFound, "tenant not found")
				return
			}
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		eff, err := s.resolver.Resolve(r.Context(), req.TenantID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		s.respondJSON(w, http.StatusOK, eff)
		return
	}

	// The global record is total: start from the current values and apply
	// only the fields present in the request.
	current, err := s.resolver.Resolve(r.Context(), nil)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.RateLimitMaxMessages != nil {
		current.RateLimitMaxMessages = *req.RateLimitMaxMessages
	}
	if req.RateLimitWindowSeconds != nil {
		current.RateLimitWindowSeconds = *req.RateLimitWindowSeconds
	}
	if req.SchedulingEnabled != nil {
		current.SchedulingEnabled = *req.SchedulingEnabled
	}
	if req.IdleThresholdSeconds != nil {
		current.IdleThresholdSeconds = *req.IdleThresholdSeconds
	}
	if req.SimilarityThreshold != nil {
		current.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.MaxContextSnippets != nil {
		current.MaxContextSnippets = *req.MaxContextSnippets
	}
	if req.SystemPrompt != nil {
		current.SystemPrompt = *req.SystemPrompt
	}

	if err := s.resolver.UpsertGlobal(r.Context(), &current); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, current)
}
