package storage

import (
	"context"
	"errors"
	"fmt"

	"studymate/internal/models"
	"studymate/internal/util"

	"github.com/jackc/pgx/v5"
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) CreateConversation(ctx context.Context, c models.Conversation) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO conversations (conversation_id, user_id, title) VALUES ($1, $2, $3)`,
		c.ConversationID, c.UserID, c.Title)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation fetches a live conversation owned by userID. A missing or
// foreign conversation is ErrNotFound either way; ownership is never leaked
// as a distinct condition.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	var c models.Conversation
	err := r.db.Pool.QueryRow(ctx, `
SELECT conversation_id, user_id, title, created_at, updated_at
FROM conversations
WHERE conversation_id=$1 AND user_id=$2 AND deleted_at IS NULL`,
		conversationID, userID).
		Scan(&c.ConversationID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, util.ErrNotFound)
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT conversation_id, user_id, title, created_at, updated_at
FROM conversations
WHERE user_id=$1 AND deleted_at IS NULL
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ConversationID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func (r *ConversationRepo) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE conversations SET updated_at=NOW() WHERE conversation_id=$1`, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// SoftDeleteConversation marks the conversation deleted; rows are never
// removed by this layer.
func (r *ConversationRepo) SoftDeleteConversation(ctx context.Context, conversationID, userID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE conversations SET deleted_at=NOW()
WHERE conversation_id=$1 AND user_id=$2 AND deleted_at IS NULL`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("soft delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, util.ErrNotFound)
	}
	return nil
}
