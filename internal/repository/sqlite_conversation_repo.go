package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"support-chat-backend/internal/models"
)

// SQLiteConversationRepo is the SQLite store used for local development
// and tests. The database must be opened with _txlock=immediate (see
// database.OpenSQLite) so every transaction takes the write lock up front.
type SQLiteConversationRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteConversationRepo(db *sql.DB) *SQLiteConversationRepo {
	return &SQLiteConversationRepo{db: db, now: storeNow}
}

// WithClock replaces the clock used to stamp conversations and messages.
func (r *SQLiteConversationRepo) WithClock(now func() time.Time) *SQLiteConversationRepo {
	r.now = now
	return r
}

func (r *SQLiteConversationRepo) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	now := r.now()
	c := &models.Conversation{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)",
		c.ID.String(), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (r *SQLiteConversationRepo) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, created_at, updated_at FROM conversations WHERE id = ?", id.String(),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (r *SQLiteConversationRepo) AppendMessage(ctx context.Context, conversationID uuid.UUID, sender models.Sender, text string) (*models.Message, error) {
	if text == "" || !sender.Valid() {
		return nil, ErrInvalidMessage
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var lastUpdate time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT updated_at FROM conversations WHERE id = ?", conversationID.String(),
	).Scan(&lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      nextTimestamp(r.now(), lastUpdate.UTC()),
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender, text, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID.String(), conversationID.String(), string(sender), text, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if msg.Seq, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("message seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", msg.CreatedAt, conversationID.String(),
	); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (r *SQLiteConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return nil, err
	}

	return r.queryMessages(ctx,
		`SELECT id, conversation_id, sender, text, created_at, seq FROM messages
		WHERE conversation_id = ? ORDER BY created_at ASC, seq ASC`,
		conversationID.String(),
	)
}

func (r *SQLiteConversationRepo) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*models.Message{}, nil
	}

	return r.queryMessages(ctx,
		`SELECT id, conversation_id, sender, text, created_at, seq FROM messages
		WHERE conversation_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		conversationID.String(), limit,
	)
}

func (r *SQLiteConversationRepo) CountMessages(ctx context.Context, conversationID uuid.UUID) (int, error) {
	if err := r.ensureExists(ctx, conversationID); err != nil {
		return 0, err
	}

	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (r *SQLiteConversationRepo) ListConversations(ctx context.Context, updatedAfter time.Time, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, updated_at FROM conversations
		WHERE updated_at > ? ORDER BY updated_at DESC LIMIT ?`,
		updatedAfter.UTC(), limit,
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

func (r *SQLiteConversationRepo) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", id.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id.String()); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *SQLiteConversationRepo) DeleteConversationsUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE updated_at < ?)", cutoff,
	); err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge conversations: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return deleted, nil
}

func (r *SQLiteConversationRepo) ensureExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", id.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteConversationRepo) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
