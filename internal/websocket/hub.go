package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"support-chat-backend/internal/models"
	"support-chat-backend/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type conversationLookup interface {
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, int, error)
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub streams conversation events to websocket clients. One Redis
// subscription is held per conversation while it has open sockets.
type Hub struct {
	mu            sync.RWMutex
	connections   map[uuid.UUID][]*client
	redisClient   *redis.Client
	conversations conversationLookup
	cancelFuncs   map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, conversations conversationLookup) *Hub {
	return &Hub{
		connections:   make(map[uuid.UUID][]*client),
		redisClient:   redisClient,
		conversations: conversations,
		cancelFuncs:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// HandleWebSocket serves GET /api/ws?conversationId=...
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		http.Error(w, "conversationId is required", http.StatusBadRequest)
		return
	}

	if h.conversations != nil {
		if _, _, err := h.conversations.GetConversation(r.Context(), conversationID.String()); err != nil {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	h.registerConnection(conversationID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(conversationID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(conversationID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conversationID] = append(h.connections[conversationID], c)

	// Start pub/sub subscription if this is the first connection for this conversation
	if len(h.connections[conversationID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[conversationID] = cancel
		go h.subscribeToPubSub(ctx, conversationID)
	}

	log.Printf("WebSocket connected: conversation %s (total: %d)", conversationID, len(h.connections[conversationID]))
}

func (h *Hub) unregisterConnection(conversationID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[conversationID]
	for i, existing := range conns {
		if existing == c {
			h.connections[conversationID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[conversationID]) == 0 {
		delete(h.connections, conversationID)
		if cancel, ok := h.cancelFuncs[conversationID]; ok {
			cancel()
			delete(h.cancelFuncs, conversationID)
		}
	}

	log.Printf("WebSocket disconnected: conversation %s", conversationID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, conversationID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.ConversationChannel(conversationID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(conversationID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(conversationID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := append([]*client(nil), h.connections[conversationID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			log.Printf("WebSocket write failed: conversation %s: %v", conversationID, err)
		}
	}
}

// SendToConversation delivers an event to local sockets without Redis.
func (h *Hub) SendToConversation(event models.ConversationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.broadcast(event.ConversationID, data)
}

// ConnectionCount reports the open sockets for a conversation.
func (h *Hub) ConnectionCount(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[conversationID])
}

// Close cancels every subscription and closes all sockets.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, cancel := range h.cancelFuncs {
		cancel()
		delete(h.cancelFuncs, id)
	}
	for id, conns := range h.connections {
		for _, c := range conns {
			c.conn.Close()
		}
		delete(h.connections, id)
	}
}
