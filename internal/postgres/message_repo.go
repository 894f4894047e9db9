package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/store"
)

type MessageRepository struct {
	q querier
}

func NewMessageRepository(q querier) *MessageRepository {
	return &MessageRepository{q: q}
}

func (r *MessageRepository) Append(ctx context.Context, m domain.Message) (string, error) {
	var id string
	err := r.q.QueryRow(ctx, queryInsertMessage,
		m.ID, m.RoomID, m.SenderID, m.SenderName, m.Content, m.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", mapPgError(err, nil))
	}
	return id, nil
}

// History возвращает историю сообщений комнаты с курсорной пагинацией (created_at,id DESC).
func (r *MessageRepository) History(ctx context.Context, roomID, before string, limit int) ([]domain.Message, string, error) {
	limit = store.ClampLimit(limit)
	cur, err := store.DecodeCursor(before)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.q.Query(ctx, queryHistory, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	return out, store.NextCursor(out, limit), nil
}
