package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"support-chat-backend/internal/models"
)

// EventPublisher fans conversation changes out to live subscribers.
// Publishing is best effort and never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event models.ConversationEvent)
}

// ConversationChannel is the Redis pub/sub channel for one conversation.
func ConversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_updates:%s", conversationID.String())
}

type RedisEventPublisher struct {
	redis *redis.Client
}

func NewRedisEventPublisher(redisClient *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{redis: redisClient}
}

// Publish sends the event via Redis pub/sub
func (p *RedisEventPublisher) Publish(ctx context.Context, event models.ConversationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("events: marshal %s: %v", event.Type, err)
		return
	}
	if err := p.redis.Publish(ctx, ConversationChannel(event.ConversationID), string(data)).Err(); err != nil {
		log.Printf("events: publish %s for %s: %v", event.Type, event.ConversationID, err)
	}
}

// NoopEventPublisher is used when Redis is not configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, models.ConversationEvent) {}
