// Package store defines the persistence contracts shared by the postgres,
// sqlite and in-memory backends.
package store

import (
	"context"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// MessageStore is the durable record of relayed messages.
type MessageStore interface {
	// Append stores m and returns the stored id.
	Append(ctx context.Context, m domain.Message) (string, error)
	// History returns messages of a room, newest first, strictly older than
	// the cursor. next is empty when there are no more pages.
	History(ctx context.Context, roomID, before string, limit int) (msgs []domain.Message, next string, err error)
}

// UserStore holds accounts and their login state.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateLoginState(ctx context.Context, u *domain.User) error
}

// ClampLimit applies the default and upper bound of a history page.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// NextCursor returns the cursor for the page after page, or "" when page is
// shorter than limit.
func NextCursor(page []domain.Message, limit int) string {
	if len(page) == 0 || len(page) < limit {
		return ""
	}
	last := page[len(page)-1]
	c, err := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	if err != nil {
		return ""
	}
	return c
}
