package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/store"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, m domain.Message) (string, error) {
	row := toMessageRow(m)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}
	return row.ID, nil
}

// History returns messages ordered by (created_at, id) DESC.
func (r *MessageRepository) History(ctx context.Context, roomID, before string, limit int) ([]domain.Message, string, error) {
	limit = store.ClampLimit(limit)
	cur, err := store.DecodeCursor(before)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if cur != nil {
		ts := cur.CreatedAt.UnixNano()
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", ts, ts, cur.ID)
	}

	var rows []messageRow
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, store.NextCursor(out, limit), nil
}
