package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"support-chat-backend/internal/models"
)

// ConversationRepo stores conversations and messages in Postgres.
type ConversationRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool, now: storeNow}
}

func (r *ConversationRepo) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	now := r.now()
	c := &models.Conversation{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}

	_, err := r.pool.Exec(ctx,
		"INSERT INTO conversations (id, created_at, updated_at) VALUES ($1, $2, $3)",
		c.ID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, created_at, updated_at FROM conversations WHERE id = $1", id,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// AppendMessage inserts the message and bumps the conversation's updated_at
// in one transaction. The conversation row stays locked until commit, so
// concurrent appends to the same conversation are serialized.
func (r *ConversationRepo) AppendMessage(ctx context.Context, conversationID uuid.UUID, sender models.Sender, text string) (*models.Message, error) {
	if text == "" || !sender.Valid() {
		return nil, ErrInvalidMessage
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastUpdate time.Time
	err = tx.QueryRow(ctx,
		"SELECT updated_at FROM conversations WHERE id = $1 FOR UPDATE", conversationID,
	).Scan(&lastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock conversation: %w", err)
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      nextTimestamp(r.now(), lastUpdate.UTC()),
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender, text, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING seq`,
		msg.ID, msg.ConversationID, string(msg.Sender), msg.Text, msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE conversations SET updated_at = $1 WHERE id = $2", msg.CreatedAt, conversationID,
	); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

// ListMessages returns every message of the conversation, oldest first.
func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return nil, err
	}

	return r.queryMessages(ctx,
		`SELECT id, conversation_id, sender, text, created_at, seq FROM messages
		WHERE conversation_id = $1 ORDER BY created_at ASC, seq ASC`,
		conversationID,
	)
}

// RecentMessages returns the limit most recent messages, newest first.
func (r *ConversationRepo) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*models.Message{}, nil
	}

	return r.queryMessages(ctx,
		`SELECT id, conversation_id, sender, text, created_at, seq FROM messages
		WHERE conversation_id = $1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		conversationID, limit,
	)
}

func (r *ConversationRepo) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return 0, err
	}

	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = $1", conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ListConversations returns conversations updated after the given time,
// most recently updated first.
func (r *ConversationRepo) ListConversations(ctx context.Context, updatedAfter time.Time, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, created_at, updated_at FROM conversations
		WHERE updated_at > $1 ORDER BY updated_at DESC LIMIT $2`,
		updatedAfter, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*models.Conversation{}
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes the messages and then the conversation in a
// single transaction.
func (r *ConversationRepo) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, "SELECT id FROM conversations WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock conversation: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = $1", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// DeleteConversationsUpdatedBefore purges idle conversations and their
// messages. Rows are locked first so a conversation that receives a message
// mid-sweep is either fully kept or fully removed.
func (r *ConversationRepo) DeleteConversationsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		"SELECT id::text FROM conversations WHERE updated_at < $1 FOR UPDATE", cutoff)
	if err != nil {
		return 0, fmt.Errorf("select expired conversations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = ANY($1::uuid[])", ids); err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = ANY($1::uuid[])", ids)
	if err != nil {
		return 0, fmt.Errorf("purge conversations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ConversationRepo) ensureExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Text, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		m.Sender = models.Sender(sender)
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
