package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"support-chat-backend/internal/handlers"
	"support-chat-backend/internal/middleware"
	"support-chat-backend/internal/websocket"
)

// New builds the HTTP routes. wsHub may be nil when Redis is not configured.
func New(
	chatHandler *handlers.ChatHandler,
	chatLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			if chatLimiter != nil {
				r.Use(chatLimiter.Middleware)
			}
			r.Post("/", chatHandler.Chat)
			r.Post("/message", chatHandler.SendMessage)
		})

		// ──── Conversation Routes ────
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", chatHandler.CreateConversation)
			r.Get("/", chatHandler.ListConversations)
			r.Get("/{id}", chatHandler.GetConversation)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.Delete("/{id}", chatHandler.DeleteConversation)
		})

		// ──── WebSocket ────
		if wsHub != nil {
			r.Get("/ws", wsHub.HandleWebSocket)
		}
	})

	return r
}
