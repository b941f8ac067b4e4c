package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/processor"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ========== Conversation handlers ==========

// HandleListConversations lists conversations for a tenant
func (s *RESTServer) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenantId"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var status *models.ConversationStatus
	if st := r.URL.Query().Get("status"); st != "" {
		cs := models.ConversationStatus(st)
		switch cs {
		case models.ConversationActive, models.ConversationCompleted, models.ConversationArchived:
			status = &cs
		default:
			s.respondError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	limit, offset := parsePagination(r)

	convs, total, err := s.store.ListConversations(r.Context(), tenantID, status, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"total":         total,
	})
}

// HandleGetConversation gets a conversation
func (s *RESTServer) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, conv)
}

// HandleListConversationMessages lists a conversation's messages
func (s *RESTServer) HandleListConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	if _, err := s.store.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit, offset := parsePagination(r)

	msgs, total, err := s.store.ListMessages(r.Context(), id, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"total":    total,
	})
}

// HandleEndConversation marks a conversation as explicitly ended. The next
// sweep finalizes it as completed.
func (s *RESTServer) HandleEndConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if conv.Status != models.ConversationActive {
		s.respondError(w, http.StatusConflict, "conversation is not active")
		return
	}

	if err := s.store.EndConversation(r.Context(), id, time.Now()); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Ending releases the pair's rate limit window right away.
	s.limiter.Reset(conv.RecipientID, conv.TenantID.String())

	conv, err = s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, conv)
}

// ========== Inbound message handler ==========

// HandleInboundMessage runs the inbound pipeline for gateways that deliver
// over webhooks instead of NATS.
func (s *RESTServer) HandleInboundMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    uuid.UUID `json:"tenantId" validate:"required"`
		RecipientID string    `json:"recipientId" validate:"required"`
		Content     string    `json:"content" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.processor.HandleInbound(r.Context(), processor.InboundMessage{
		TenantID:    req.TenantID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant not found")
			return
		}
		if errors.Is(err, storage.ErrInvalidData) {
			s.respondError(w, http.StatusBadRequest, "invalid message")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}
