package http

import (
	"time"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

const maxBodyBytes = 1 << 16

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type LoginResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type MessageItem struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Sender    domain.Identity `json:"sender"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

type HistoryResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type PresenceItem struct {
	User        domain.Identity `json:"user"`
	ConnectedAt time.Time       `json:"connected_at"`
	LastActive  time.Time       `json:"last_active"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

func toMessageItems(msgs []domain.Message) []MessageItem {
	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageItem{
			ID:        m.ID,
			Room:      m.RoomID,
			Sender:    m.Sender(),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return items
}
