package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry of the context sent to the LLM.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the payload sent to POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// ChatResponse is the AI reply returned by POST /api/chat.
type ChatResponse struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	Message        string    `json:"message"`
	Sender         Sender    `json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
}

// AltChatRequest is the payload of POST /api/chat/message.
type AltChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type AltChatResponse struct {
	Reply     string    `json:"reply"`
	SessionID uuid.UUID `json:"sessionId"`
}
