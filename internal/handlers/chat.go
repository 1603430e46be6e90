package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"support-chat-backend/internal/models"
)

// Longer messages are cut before they are stored.
const maxChatMessageRunes = 3000

const maxChatBodyBytes = 32 * 1024

type chatService interface {
	SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error)
	CreateConversation(ctx context.Context) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, int, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	ListConversations(ctx context.Context, updatedAfter time.Time, limit int) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

type ChatHandler struct {
	chat chatService
}

func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeChatBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message cannot be empty", r))
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), req.ConversationID, clampMessage(req.Message))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{
		ConversationID: reply.ConversationID,
		MessageID:      reply.ID,
		Message:        reply.Text,
		Sender:         reply.Sender,
		Timestamp:      reply.CreatedAt,
	})
}

// SendMessage handles POST /api/chat/message, the sessionId/reply variant of Chat.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.AltChatRequest
	if !decodeChatBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message cannot be empty", r))
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), req.SessionID, clampMessage(req.Message))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AltChatResponse{
		Reply:     reply.Text,
		SessionID: reply.ConversationID,
	})
}

// decodeChatBody writes the 400 response itself when it returns false.
func decodeChatBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Request body too large", r))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

func clampMessage(s string) string {
	runes := []rune(s)
	if len(runes) <= maxChatMessageRunes {
		return s
	}
	return string(runes[:maxChatMessageRunes])
}
