package sqlite

import (
	"time"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

// messageRow keeps created_at as unix nanoseconds so cursor comparisons are
// exact integer comparisons.
type messageRow struct {
	ID         string `gorm:"primarykey;size:36"`
	RoomID     string `gorm:"size:100;not null;index:idx_messages_room_created,priority:1"`
	SenderID   string `gorm:"size:36;not null"`
	SenderName string `gorm:"size:30;not null"`
	Content    string `gorm:"not null"`
	CreatedAt  int64  `gorm:"not null;autoCreateTime:false;index:idx_messages_room_created,priority:2"`
}

func (messageRow) TableName() string {
	return "messages"
}

func toMessageRow(m domain.Message) messageRow {
	return messageRow{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.UnixNano(),
	}
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:         r.ID,
		RoomID:     r.RoomID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Content:    r.Content,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
}

type userRow struct {
	ID            string `gorm:"primarykey;size:36"`
	Username      string `gorm:"size:30;not null"`
	UsernameKey   string `gorm:"size:30;not null;uniqueIndex"`
	PasswordHash  string `gorm:"not null"`
	LoginAttempts int    `gorm:"not null;default:0"`
	LockUntil     *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userRow) TableName() string {
	return "users"
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:            r.ID,
		Username:      r.Username,
		PasswordHash:  r.PasswordHash,
		LoginAttempts: r.LoginAttempts,
		LockUntil:     r.LockUntil,
		LastLogin:     r.LastLogin,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
