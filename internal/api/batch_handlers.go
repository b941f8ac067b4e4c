package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/batch"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ========== Batch handlers ==========

// HandleBatchRun triggers one sweep, for a single tenant when tenantId is
// given. Invoked by the external scheduler.
func (s *RESTServer) HandleBatchRun(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if tid := r.URL.Query().Get("tenantId"); tid != "" {
		id, err := uuid.Parse(tid)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid tenant id")
			return
		}
		tenantID = &id
	}

	result, err := s.batch.RunSweep(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, batch.ErrSchedulingDisabled) {
			s.respondError(w, http.StatusForbidden, "scheduling is disabled")
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// HandleBatchHealth liveness probe for the sweep scheduler
func (s *RESTServer) HandleBatchHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}
