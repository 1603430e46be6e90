package models

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Role maps a stored sender to the role name LLM providers expect.
func (s Sender) Role() string {
	if s == SenderUser {
		return RoleUser
	}
	return RoleAssistant
}

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"timestamp"`

	// Seq is the store-assigned insertion order, used to break createdAt ties.
	Seq int64 `json:"-"`
}

type ConversationResponse struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount *int      `json:"messageCount,omitempty"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation event types pushed over Redis pub/sub and the websocket hub.
const (
	EventMessageCreated      = "message_created"
	EventConversationDeleted = "conversation_deleted"
)

type ConversationEvent struct {
	Type           string           `json:"type"`
	ConversationID uuid.UUID        `json:"conversationId"`
	Message        *MessageResponse `json:"message,omitempty"`
}

// API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (c *Conversation) Response() ConversationResponse {
	return ConversationResponse{ID: c.ID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func (m *Message) Response() MessageResponse {
	return MessageResponse{ID: m.ID, Sender: m.Sender, Text: m.Text, Timestamp: m.CreatedAt}
}
