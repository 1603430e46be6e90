package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"support-chat-backend/internal/models"
)

const maxListLimit = 100

// CreateConversation handles POST /api/conversations.
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.CreateConversation(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv.Response())
}

// ListConversations handles GET /api/conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be a positive integer", r))
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var updatedAfter time.Time
	if raw := r.URL.Query().Get("updatedAfter"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "updatedAfter must be an RFC3339 timestamp", r))
			return
		}
		updatedAfter = t
	}

	convs, err := h.chat.ListConversations(r.Context(), updatedAfter, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]models.ConversationResponse, 0, len(convs))
	for _, c := range convs {
		resp = append(resp, c.Response())
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /api/conversations/{id}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, count, err := h.chat.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	resp := conv.Response()
	resp.MessageCount = &count
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages handles GET /api/conversations/{id}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chat.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]models.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, m.Response())
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
