package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"support-chat-backend/internal/models"
)

func runStoreContract(t *testing.T, newStore func(t *testing.T) ConversationStore) {
	t.Run("append then list keeps order", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		conv := mustCreate(t, store)
		mustAppend(t, store, conv.ID, models.SenderUser, "Hello")
		mustAppend(t, store, conv.ID, models.SenderAI, "Hi! How can I help?")
		mustAppend(t, store, conv.ID, models.SenderUser, "What is your return policy?")

		msgs, err := store.ListMessages(ctx, conv.ID)
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		last := msgs[len(msgs)-1]
		if last.Text != "What is your return policy?" || last.Sender != models.SenderUser {
			t.Fatalf("unexpected last message: %+v", last)
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
				t.Fatalf("messages out of chronological order at %d", i)
			}
		}
	})

	t.Run("append updates conversation timestamp", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		conv := mustCreate(t, store)
		msg := mustAppend(t, store, conv.ID, models.SenderUser, "ping")

		got, err := store.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if !got.UpdatedAt.Equal(msg.CreatedAt) {
			t.Fatalf("expected updatedAt %s, got %s", msg.CreatedAt, got.UpdatedAt)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Fatalf("updatedAt %s before createdAt %s", got.UpdatedAt, got.CreatedAt)
		}
	})

	t.Run("recent messages are the latest, newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		conv := mustCreate(t, store)
		for i := 1; i <= 5; i++ {
			mustAppend(t, store, conv.ID, models.SenderUser, fmt.Sprintf("m%d", i))
		}

		recent, err := store.RecentMessages(ctx, conv.ID, 3)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		want := []string{"m5", "m4", "m3"}
		if len(recent) != len(want) {
			t.Fatalf("expected %d messages, got %d", len(want), len(recent))
		}
		for i, w := range want {
			if recent[i].Text != w {
				t.Errorf("recent[%d] = %q, want %q", i, recent[i].Text, w)
			}
		}

		all, err := store.RecentMessages(ctx, conv.ID, 50)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected min(count, limit) = 5, got %d", len(all))
		}

		none, err := store.RecentMessages(ctx, conv.ID, 0)
		if err != nil {
			t.Fatalf("RecentMessages(0): %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no messages for limit 0, got %d", len(none))
		}
	})

	t.Run("missing conversation is not found", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		missing := uuid.New()

		if _, err := store.GetConversation(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetConversation: expected ErrNotFound, got %v", err)
		}
		if _, err := store.AppendMessage(ctx, missing, models.SenderUser, "hi"); !errors.Is(err, ErrNotFound) {
			t.Errorf("AppendMessage: expected ErrNotFound, got %v", err)
		}
		if _, err := store.ListMessages(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("ListMessages: expected ErrNotFound, got %v", err)
		}
		if _, err := store.RecentMessages(ctx, missing, 10); !errors.Is(err, ErrNotFound) {
			t.Errorf("RecentMessages: expected ErrNotFound, got %v", err)
		}
		if _, err := store.CountMessages(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("CountMessages: expected ErrNotFound, got %v", err)
		}
		if err := store.DeleteConversation(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteConversation: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("invalid messages are rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		conv := mustCreate(t, store)

		if _, err := store.AppendMessage(ctx, conv.ID, models.SenderUser, ""); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("empty text: expected ErrInvalidMessage, got %v", err)
		}
		if _, err := store.AppendMessage(ctx, conv.ID, models.Sender("system"), "hi"); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("bad sender: expected ErrInvalidMessage, got %v", err)
		}
	})

	t.Run("delete cascades to messages", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		conv := mustCreate(t, store)
		mustAppend(t, store, conv.ID, models.SenderUser, "Hello")
		mustAppend(t, store, conv.ID, models.SenderAI, "Hi")

		if err := store.DeleteConversation(ctx, conv.ID); err != nil {
			t.Fatalf("DeleteConversation: %v", err)
		}
		if _, err := store.ListMessages(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("ListMessages after delete: expected ErrNotFound, got %v", err)
		}
		if err := store.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("second delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent appends serialize", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		conv := mustCreate(t, store)

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := store.AppendMessage(ctx, conv.ID, models.SenderUser, fmt.Sprintf("w%d", i)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent append failed: %v", err)
		}

		count, err := store.CountMessages(ctx, conv.ID)
		if err != nil {
			t.Fatalf("CountMessages: %v", err)
		}
		if count != writers {
			t.Fatalf("expected %d messages, got %d", writers, count)
		}

		msgs, err := store.ListMessages(ctx, conv.ID)
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) || msgs[i].Seq <= msgs[i-1].Seq {
				t.Fatalf("ordering broken at %d", i)
			}
		}

		got, err := store.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if !got.UpdatedAt.Equal(msgs[len(msgs)-1].CreatedAt) {
			t.Fatalf("updatedAt %s does not match newest message %s", got.UpdatedAt, msgs[len(msgs)-1].CreatedAt)
		}
	})
}

func mustCreate(t *testing.T, store ConversationStore) *models.Conversation {
	t.Helper()
	conv, err := store.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv
}

func mustAppend(t *testing.T, store ConversationStore, id uuid.UUID, sender models.Sender, text string) *models.Message {
	t.Helper()
	msg, err := store.AppendMessage(context.Background(), id, sender, text)
	if err != nil {
		t.Fatalf("AppendMessage(%q): %v", text, err)
	}
	return msg
}
