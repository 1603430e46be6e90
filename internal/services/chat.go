package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"support-chat-backend/internal/models"
	"support-chat-backend/internal/repository"
)

const conversationNotFound = "Conversation not found"

// ChatService runs the conversation flow: persist the user turn, build the
// context window, ask the LLM, persist the reply.
type ChatService struct {
	store      repository.ConversationStore
	llm        *LLMService
	events     EventPublisher
	maxHistory int
	maxChars   int
}

func NewChatService(store repository.ConversationStore, llm *LLMService, events EventPublisher, maxHistory, maxChars int) *ChatService {
	if events == nil {
		events = NoopEventPublisher{}
	}
	return &ChatService{
		store:      store,
		llm:        llm,
		events:     events,
		maxHistory: maxHistory,
		maxChars:   maxChars,
	}
}

// SendMessage appends text as a user message to the conversation (a new one
// when conversationID is empty) and returns the persisted AI reply.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Message: "Message cannot be empty"}
	}

	conv, err := s.resolveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(ctx, conv.ID, models.SenderUser, text)
	if err != nil {
		return nil, storeError("append user message", err)
	}
	s.publishMessage(ctx, userMsg)

	// Once the user turn is stored the exchange must end with an AI turn,
	// even if the caller goes away. The LLM timeout still bounds it.
	ctx = context.WithoutCancel(ctx)

	recent, err := s.store.RecentMessages(ctx, conv.ID, s.maxHistory+1)
	if err != nil {
		return nil, storeError("load history", err)
	}
	prior := make([]*models.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != userMsg.ID {
			prior = append(prior, m)
		}
	}
	history := BuildHistoryWindow(prior, s.maxHistory, s.maxChars)

	reply, err := s.llm.Generate(ctx, history, text)
	if err != nil {
		var unsupported *UnsupportedProviderError
		if !errors.As(err, &unsupported) {
			return nil, err
		}
		log.Printf("chat: conversation %s answered with fallback: %v", conv.ID, err)
	}

	aiMsg, err := s.store.AppendMessage(ctx, conv.ID, models.SenderAI, reply)
	if err != nil {
		return nil, storeError("append ai message", err)
	}
	s.publishMessage(ctx, aiMsg)

	return aiMsg, nil
}

func (s *ChatService) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the conversation and its message count.
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, int, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, 0, err
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, 0, storeError("get conversation", err)
	}
	count, err := s.store.CountMessages(ctx, id)
	if err != nil {
		return nil, 0, storeError("count messages", err)
	}
	return conv, count, nil
}

func (s *ChatService) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	return msgs, nil
}

func (s *ChatService) ListConversations(ctx context.Context, updatedAfter time.Time, limit int) ([]*models.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, updatedAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	id, err := parseConversationID(conversationID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return storeError("delete conversation", err)
	}
	s.events.Publish(ctx, models.ConversationEvent{
		Type:           models.EventConversationDeleted,
		ConversationID: id,
	})
	return nil
}

func (s *ChatService) resolveConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return s.CreateConversation(ctx)
	}
	id, err := parseConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, storeError("get conversation", err)
	}
	return conv, nil
}

func (s *ChatService) publishMessage(ctx context.Context, msg *models.Message) {
	resp := msg.Response()
	s.events.Publish(ctx, models.ConversationEvent{
		Type:           models.EventMessageCreated,
		ConversationID: msg.ConversationID,
		Message:        &resp,
	})
}

func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Message: conversationNotFound}
	case errors.Is(err, repository.ErrInvalidMessage):
		return &ValidationError{Message: "Invalid message"}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// A malformed id can never name a stored conversation.
func parseConversationID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, &NotFoundError{Message: conversationNotFound}
	}
	return id, nil
}
