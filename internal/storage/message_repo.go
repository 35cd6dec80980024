package storage

import (
	"context"
	"fmt"

	"studymate/internal/models"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) CreateMessage(ctx context.Context, m models.Message) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO messages (message_id, conversation_id, role, content) VALUES ($1, $2, $3, $4)`,
		m.MessageID, m.ConversationID, string(m.Role), m.Content)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the full thread in chronological order. Callers must
// not assume strict user/assistant alternation; the store does not enforce it.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return r.list(ctx, conversationID, "created_at ASC", 0)
}

// ListRecentMessages returns at most limit messages, newest first. The
// assembler reverses them before rendering.
func (r *MessageRepo) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return r.list(ctx, conversationID, "created_at DESC", limit)
}

func (r *MessageRepo) list(ctx context.Context, conversationID, order string, limit int) ([]models.Message, error) {
	q := `
SELECT message_id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id=$1
ORDER BY ` + order
	args := []any{conversationID}
	if limit > 0 {
		q += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
