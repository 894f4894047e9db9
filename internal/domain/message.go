package domain

import "time"

type Message struct {
	ID         string    `db:"id"`
	RoomID     string    `db:"room_id"`
	SenderID   string    `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}

func (m Message) Sender() Identity {
	return Identity{UserID: m.SenderID, Username: m.SenderName}
}
