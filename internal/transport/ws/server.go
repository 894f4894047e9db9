package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	nanoid "github.com/jaevor/go-nanoid"

	"github.com/cwrk-planet/chat-relay/internal/auth"
	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/metrics"
	"github.com/cwrk-planet/chat-relay/internal/presence"
	"github.com/cwrk-planet/chat-relay/internal/ratelimit"
	"github.com/cwrk-planet/chat-relay/internal/rooms"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
	"github.com/cwrk-planet/chat-relay/pkg/logger"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type PresenceTracker interface {
	Register(id domain.Identity, h presence.Handle) presence.Handle
	Touch(id domain.Identity) bool
	Remove(id domain.Identity, h presence.Handle) bool
	Run(ctx context.Context, interval, maxIdle time.Duration, onEvict func(presence.Entry)) error
}

type RoomRegistry interface {
	Join(roomID string, s rooms.Subscriber) bool
	Leave(roomID string, s rooms.Subscriber) bool
	LeaveAll(s rooms.Subscriber) []string
	RoomsOf(s rooms.Subscriber) []string
}

type Relayer interface {
	Relay(ctx context.Context, from domain.Identity, roomID, content string) (domain.Message, error)
}

type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	MessageBurst   int
	MessageRefill  time.Duration
	TouchOnPong    bool
	AllowedOrigins []string
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 16 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 10
	}
	if c.MessageRefill <= 0 {
		c.MessageRefill = time.Second
	}
}

// Server is the connection lifecycle manager: it authenticates the handshake,
// registers presence, dispatches room and message events and tears everything
// down when the connection closes.
type Server struct {
	upgrader websocket.Upgrader
	auth     Authenticator
	presence PresenceTracker
	rooms    RoomRegistry
	relay    Relayer
	cfg      Config
	newID    func() string

	mu      sync.Mutex
	conns   map[string]*conn
	closing bool
	wg      sync.WaitGroup
}

func NewServer(a Authenticator, p PresenceTracker, r RoomRegistry, rl Relayer, cfg Config) *Server {
	cfg.setDefaults()

	newID, err := nanoid.Standard(21)
	if err != nil {
		newID = uuid.NewString
	}

	s := &Server{
		auth:     a,
		presence: p,
		rooms:    r,
		relay:    rl,
		cfg:      cfg,
		newID:    newID,
		conns:    make(map[string]*conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// WS endpoint: GET /ws?access_token=... (или Authorization: Bearer ...)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if s.isClosing() {
		httputil.Error(ctx, w, http.StatusServiceUnavailable, ReasonShutdown, nil)
		return
	}

	token := auth.TokenFromRequest(r)
	identity, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		reason := "invalid_token"
		if token == "" {
			reason = "missing_token"
		}
		metrics.AuthFailures.WithLabelValues(reason).Inc()
		log.Info("ws auth rejected", "reason", reason, "remote", r.RemoteAddr)
		httputil.Error(ctx, w, http.StatusUnauthorized, "please log in", nil)
		return
	}
	metrics.AuthSuccess.Inc()

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the HTTP error
		log.Warn("ws upgrade failed", "user", identity.UserID, "err", err)
		return
	}

	c := newConn(s.newID(), wsConn, identity, s.cfg.SendBuffer, ratelimit.NewTokenBucket(s.cfg.MessageBurst, s.cfg.MessageRefill))
	if !s.track(c) {
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ReasonShutdown), time.Now().Add(time.Second))
		_ = wsConn.Close()
		return
	}
	defer s.wg.Done()

	log = log.With("user", identity.UserID, "conn", c.id)
	s.open(c, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(c)
	}()

	s.readLoop(ctx, c, log)
	s.closeConn(c, log)
	<-done
}

// open is the Connecting -> Active transition.
func (s *Server) open(c *conn, log *slog.Logger) {
	if prev := s.presence.Register(c.identity, c); prev != nil {
		if pc, ok := prev.(*conn); ok {
			log.Info("ws session replaced", "replaced_conn", pc.id)
			pc.Evict(ReasonReplaced)
		}
	}
	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()

	_ = c.enqueue(Message{Type: TypeReady, Payload: ReadyPayload{User: c.identity, ConnID: c.id}})
	log.Info("ws connected")
}

// closeConn is the Active -> Closed transition. It runs once per connection.
func (s *Server) closeConn(c *conn, log *slog.Logger) {
	c.markClosed()
	left := s.rooms.LeaveAll(c)
	s.presence.Remove(c.identity, c)
	s.untrack(c)
	metrics.ActiveConnections.Dec()

	log.Info("ws disconnected", "rooms", left)
}

func (s *Server) readLoop(ctx context.Context, c *conn, log *slog.Logger) {
	readWait := 2 * s.cfg.PingInterval

	c.ws.SetReadLimit(s.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
		if s.cfg.TouchOnPong {
			s.presence.Touch(c.identity)
		}
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.isClosed() {
				log.Debug("ws read failed", "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
		metrics.FramesReceived.Inc()

		s.dispatch(ctx, c, data, log)
	}
}

// dispatch handles one inbound frame. Errors are reported to c only and never
// end the connection.
func (s *Server) dispatch(ctx context.Context, c *conn, data []byte, log *slog.Logger) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError(CodeBadRequest, "malformed frame", "")
		return
	}

	switch env.Type {
	case TypeJoin, TypeLeave:
		var p RoomPayload
		if err := decodePayload(env.Payload, &p); err != nil || strings.TrimSpace(p.Room) == "" {
			c.sendError(CodeBadRequest, "room is required", "")
			return
		}
		room := strings.TrimSpace(p.Room)
		s.presence.Touch(c.identity)

		if env.Type == TypeJoin {
			s.rooms.Join(room, c)
			_ = c.enqueue(Message{Type: TypeJoined, Payload: RoomPayload{Room: room}})
			log.Debug("ws join", "room", room)
			return
		}
		s.rooms.Leave(room, c)
		_ = c.enqueue(Message{Type: TypeLeft, Payload: RoomPayload{Room: room}})
		log.Debug("ws leave", "room", room)

	case TypeMessage:
		var p SendPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			c.sendError(CodeBadRequest, "malformed message payload", "")
			return
		}
		if !c.limiter.Allow() {
			metrics.MessagesRejected.WithLabelValues("rate_limited").Inc()
			c.sendError(CodeRateLimited, "too many messages, slow down", p.Ref)
			return
		}

		m, err := s.relay.Relay(ctx, c.identity, strings.TrimSpace(p.Room), p.Content)
		if err != nil {
			code, reason := classify(err)
			if code == CodeInternal {
				log.Error("ws relay failed", "room", p.Room, "err", err)
			}
			c.sendError(code, reason, p.Ref)
			return
		}
		_ = c.enqueue(Message{Type: TypeAck, Payload: AckPayload{Ref: p.Ref, MessageID: m.ID, Timestamp: m.CreatedAt}})

	default:
		c.sendError(CodeBadRequest, "unknown event type", "")
	}
}

func classify(err error) (code, reason string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation, err.Error()
	case errors.Is(err, domain.ErrPersistence):
		return CodePersistence, "message failed to send, retry"
	default:
		return CodeInternal, "internal error"
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, dst)
}

func (s *Server) writeLoop(c *conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		case reason := <-c.kick:
			s.writeEviction(c, reason)
			return
		case <-c.closed:
			return
		}
	}
}

// writeEviction sends connection_error then a close frame.
func (s *Server) writeEviction(c *conn, reason string) {
	metrics.Evictions.WithLabelValues(reason).Inc()

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if data, err := json.Marshal(Message{Type: TypeConnectionError, Payload: ConnectionErrorPayload{Reason: reason}}); err == nil {
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteMessage(websocket.TextMessage, data)
	}

	code := websocket.ClosePolicyViolation
	if reason == ReasonShutdown {
		code = websocket.CloseGoingAway
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// RunSweeper evicts connections whose presence went stale, until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	return s.presence.Run(ctx, interval, maxIdle, s.evictStale)
}

func (s *Server) evictStale(e presence.Entry) {
	if c, ok := e.Handle.(*conn); ok {
		slog.Info("ws idle eviction",
			"user", e.Identity.UserID, "conn", c.id, "last_active", e.LastActive, "rooms", s.rooms.RoomsOf(c))
		c.Evict(ReasonIdle)
	}
}

// Shutdown stops accepting connections, evicts every live one and waits for
// their teardown or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	live := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()

	for _, c := range live {
		c.Evict(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

// checkOrigin allows non-browser clients (no Origin header) and the configured
// origins; "*" allows everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return strings.EqualFold(u.Host, r.Host)
}
