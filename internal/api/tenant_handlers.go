package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ========== Tenant handlers ==========

// HandleListTenants lists tenants
func (s *RESTServer) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	tenants, total, err := s.store.ListTenants(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"total":   total,
	})
}

// HandleCreateTenant creates a tenant
func (s *RESTServer) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name" validate:"required,min=3,max=100"`
		Description  string `json:"description"`
		ContactEmail string `json:"contactEmail" validate:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant := &models.Tenant{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		IsActive:     true,
	}

	if err := s.store.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "tenant already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, tenant)
}

// HandleGetTenant gets a tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleUpdateTenant updates a tenant
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req struct {
		Name         string `json:"name" validate:"required,min=3,max=100"`
		Description  string `json:"description"`
		ContactEmail string `json:"contactEmail" validate:"email"`
		IsActive     *bool  `json:"isActive,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tenant.Name = req.Name
	tenant.Description = req.Description
	tenant.ContactEmail = req.ContactEmail
	if req.IsActive != nil {
		tenant.IsActive = *req.IsActive
	}

	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleDeleteTenant deletes a tenant
func (s *RESTServer) HandleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if err := s.store.DeleteTenant(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Knowledge handlers ==========

// HandleListKnowledge lists the tenant's most recent knowledge chunks
func (s *RESTServer) HandleListKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if _, err := s.store.GetTenant(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit, _ := parsePagination(r)

	chunks, err := s.store.ListRecentKnowledgeChunks(r.Context(), id, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"chunks": chunks,
		"total":  len(chunks),
	})
}

// HandleReplaceKnowledge replaces the tenant's entire knowledge base
func (s *RESTServer) HandleReplaceKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req struct {
		Snippets []string `json:"snippets" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.store.GetTenant(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	count, err := s.indexer.Replace(r.Context(), id, req.Snippets)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"chunks": count,
	})
}
