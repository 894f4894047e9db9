package ws

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

// Входящие события (client -> server)
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"
)

// Исходящие события (server -> client)
const (
	TypeReady           = "ready"            // соединение аутентифицировано
	TypeJoined          = "joined"           // подтверждение join
	TypeLeft            = "left"             // подтверждение leave
	TypeChat            = "message"          // чат-сообщение, всем подписчикам комнаты
	TypeAck             = "ack"              // только отправителю, после сохранения
	TypeError           = "error"            // ошибка обработки одного события
	TypeConnectionError = "connection_error" // перед принудительным закрытием
)

// Коды ошибок в TypeError
const (
	CodeValidation  = "validation"
	CodePersistence = "persistence"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// Причины принудительного закрытия
const (
	ReasonReplaced     = "session replaced"
	ReasonIdle         = "idle timeout"
	ReasonShutdown     = "server shutting down"
	ReasonSlowConsumer = "slow consumer"
)

// Envelope is an inbound frame; the payload is decoded once the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type SendPayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
	Ref     string `json:"ref,omitempty"`
}

type ReadyPayload struct {
	User   domain.Identity `json:"user"`
	ConnID string          `json:"conn_id"`
}

type ChatPayload struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Sender    domain.Identity `json:"sender"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// для client: снимает pending и связывает ref с id сообщения
type AckPayload struct {
	Ref       string    `json:"ref,omitempty"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Ref    string `json:"ref,omitempty"`
}

type ConnectionErrorPayload struct {
	Reason string `json:"reason"`
}

func chatPayload(m domain.Message) ChatPayload {
	return ChatPayload{
		ID:        m.ID,
		Room:      m.RoomID,
		Sender:    m.Sender(),
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
