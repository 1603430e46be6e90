package repository

import (
	"context"
	"os"
	"testing"

	"support-chat-backend/internal/database"
)

// The Postgres repo runs the same contract when TEST_DATABASE_URL is set.
func TestConversationRepo_Contract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := database.NewPostgresPool(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := database.RunMigrations(pool, database.PostgresMigrations()); err != nil {
		t.Fatal(err)
	}

	runStoreContract(t, func(t *testing.T) ConversationStore {
		if _, err := pool.Exec(context.Background(), "TRUNCATE messages, conversations"); err != nil {
			t.Fatal(err)
		}
		return NewConversationRepo(pool)
	})
}
