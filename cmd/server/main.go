package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"support-chat-backend/internal/config"
	"support-chat-backend/internal/database"
	"support-chat-backend/internal/handlers"
	"support-chat-backend/internal/middleware"
	"support-chat-backend/internal/repository"
	"support-chat-backend/internal/router"
	"support-chat-backend/internal/services"
	"support-chat-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Support Chat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("✗ Configuration invalid: %v", err)
	}
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Open Store and Run Migrations ────
	store, closeStore, err := openStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ Database initialization failed: %v", err)
	}
	defer closeStore()

	// ──── Step 3: Initialize Redis Clients (optional) ────
	var redisClients *database.RedisClients
	var events services.EventPublisher = services.NoopEventPublisher{}
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		events = services.NewRedisEventPublisher(redisClients.Commands)
		log.Println("✓ Redis connected")
	} else {
		log.Println("✓ Redis not configured, conversation events disabled")
	}

	// ──── Step 4: Initialize LLM Provider ────
	provider, err := services.NewProvider(cfg.LLM)
	if err != nil {
		log.Fatalf("✗ LLM provider initialization failed: %v", err)
	}
	if cfg.LLM.Provider == config.ProviderGemini {
		log.Printf("✓ LLM provider %s selected (not supported, replies will use the fallback message)", cfg.LLM.Provider)
	} else {
		log.Printf("✓ LLM provider %s initialized (model %s)", cfg.LLM.Provider, cfg.LLM.Model)
	}

	// ──── Initialize Services ────
	llmService := services.NewLLMService(provider, cfg.LLM)
	chatService := services.NewChatService(store, llmService, events, cfg.LLM.MaxHistory, cfg.LLM.MaxInputChars)

	var sweeperLock *redis.Client
	if redisClients != nil {
		sweeperLock = redisClients.Commands
	}
	retentionSweeper := services.NewRetentionSweeper(store, sweeperLock, cfg.RetentionDays, cfg.RetentionInterval)
	retentionSweeper.Start()

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(chatService)
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimitPerMin, time.Minute)
	defer chatLimiter.Stop()

	// ──── Step 5: Start WebSocket Hub ────
	var wsHub *websocket.Hub
	if redisClients != nil {
		wsHub = websocket.NewHub(redisClients.PubSub, chatService)
		defer wsHub.Close()
		log.Println("✓ WebSocket hub started")
	}

	// ──── Step 6: Start HTTP Server ────
	r := router.New(chatHandler, chatLimiter, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		retentionSweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		close(idle)
	}()

	log.Printf("✓ Support Chat Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api", cfg.Port)
	if wsHub != nil {
		log.Printf("  WS:  ws://localhost:%s/api/ws", cfg.Port)
	}

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-idle
}

// openStore picks Postgres or SQLite from the DATABASE_URL scheme and applies
// the matching migrations.
func openStore(databaseURL string) (repository.ConversationStore, func(), error) {
	if database.IsSQLiteURL(databaseURL) {
		db, err := database.OpenSQLite(database.SQLitePath(databaseURL))
		if err != nil {
			return nil, nil, err
		}
		log.Println("✓ SQLite opened")
		if err := database.RunSQLiteMigrations(db, database.SQLiteMigrations()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite migrations: %w", err)
		}
		log.Println("✓ Database migrations applied")
		return repository.NewSQLiteConversationRepo(db), func() { db.Close() }, nil
	}

	pool, err := database.NewPostgresPool(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Println("✓ PostgreSQL connected")
	if err := database.RunMigrations(pool, database.PostgresMigrations()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	log.Println("✓ Database migrations applied")
	return repository.NewConversationRepo(pool), pool.Close, nil
}
