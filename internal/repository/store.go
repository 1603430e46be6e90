package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"support-chat-backend/internal/models"
)

// ConversationStore persists conversations and their ordered messages.
// Implemented by ConversationRepo (Postgres) and SQLiteConversationRepo.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, sender models.Sender, text string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
	CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error)
	ListConversations(ctx context.Context, updatedAfter time.Time, limit int) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	DeleteConversationsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ ConversationStore = (*ConversationRepo)(nil)
	_ ConversationStore = (*SQLiteConversationRepo)(nil)
)
