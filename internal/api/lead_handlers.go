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

// ========== Lead handlers ==========

// HandleListLeads lists leads for a tenant
func (s *RESTServer) HandleListLeads(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenantId"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	limit, offset := parsePagination(r)

	leads, total, err := s.store.ListLeads(r.Context(), tenantID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"total": total,
	})
}

// HandleGetLead gets a lead
func (s *RESTServer) HandleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "lead not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, lead)
}

// HandleUpdateLeadStatus moves a lead through its follow-up workflow
func (s *RESTServer) HandleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	var req struct {
		Status models.LeadStatus `json:"status" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !models.ValidLeadStatus(req.Status) {
		s.respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := s.store.UpdateLeadStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "lead not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, lead)
}
