package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
	"github.com/leadflow-server/leadflow-server/internal/storage"
)

// ========== Rate limit handlers ==========

// effectiveForSender resolves the settings governing a sender's windows.
// Senders are tenant IDs; an unparseable sender falls back to globals.
func (s *RESTServer) effectiveForSender(r *http.Request, senderID string) (models.Settings, error) {
	if id, err := uuid.Parse(senderID); err == nil {
		eff, err := s.resolver.Resolve(r.Context(), &id)
		if err == nil {
			return eff, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return models.Settings{}, err
		}
	}
	return s.resolver.Resolve(r.Context(), nil)
}

// HandleGetRateLimit reports whether a send would be allowed right now for
// the (sender, recipient) pair, without consuming a slot.
func (s *RESTServer) HandleGetRateLimit(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	sender := r.URL.Query().Get("sender")
	if recipient == "" || sender == "" {
		s.respondError(w, http.StatusBadRequest, "recipient and sender are required")
		return
	}

	eff, err := s.effectiveForSender(r, sender)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, s.limiter.Peek(sender, recipient, eff))
}

// HandleResetRateLimit clears one window, or every sender window for the
// recipient when sender is omitted. Always succeeds.
func (s *RESTServer) HandleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient" validate:"required"`
		Sender    string `json:"sender,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, s.limiter.Reset(req.Recipient, req.Sender))
}

// HandleBulkResetRateLimit clears all sender windows for a recipient
func (s *RESTServer) HandleBulkResetRateLimit(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		s.respondError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	s.respondJSON(w, http.StatusOK, s.limiter.Reset(recipient, ""))
}
