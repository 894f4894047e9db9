package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/ratelimit"
)

// conn is one live websocket session. Writes go through the send queue and
// are performed by the write loop only; closed is the single shutdown signal,
// so enqueueing never races a closed channel.
type conn struct {
	id       string
	ws       *websocket.Conn
	identity domain.Identity
	limiter  *ratelimit.TokenBucket

	send chan []byte
	kick chan string

	closed    chan struct{}
	closeOnce sync.Once
	kickOnce  sync.Once
}

func newConn(id string, ws *websocket.Conn, identity domain.Identity, buffer int, limiter *ratelimit.TokenBucket) *conn {
	return &conn{
		id:       id,
		ws:       ws,
		identity: identity,
		limiter:  limiter,
		send:     make(chan []byte, buffer),
		kick:     make(chan string, 1),
		closed:   make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Deliver queues a chat message. It never blocks: a closed connection yields
// domain.ErrConnClosed and a full queue evicts the connection as a slow
// consumer.
func (c *conn) Deliver(m domain.Message) error {
	return c.enqueue(Message{Type: TypeChat, Payload: chatPayload(m)})
}

func (c *conn) enqueue(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return domain.ErrConnClosed
	default:
		c.Evict(ReasonSlowConsumer)
		return domain.ErrSlowConsumer
	}
}

func (c *conn) sendError(code, reason, ref string) {
	_ = c.enqueue(Message{Type: TypeError, Payload: ErrorPayload{Code: code, Reason: reason, Ref: ref}})
}

// Evict asks the write loop to send connection_error and close. Only the
// first reason is used.
func (c *conn) Evict(reason string) {
	c.kickOnce.Do(func() { c.kick <- reason })
}

func (c *conn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
