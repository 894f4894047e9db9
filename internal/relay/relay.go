// Package relay validates, persists and broadcasts chat messages.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/metrics"
	"github.com/cwrk-planet/chat-relay/internal/rooms"
)

const (
	DefaultMaxContentLength = 1000
	DefaultAppendTimeout    = 3 * time.Second
)

type Appender interface {
	Append(ctx context.Context, m domain.Message) (string, error)
}

type SubscriberSource interface {
	Subscribers(roomID string) []rooms.Subscriber
}

type Toucher interface {
	Touch(id domain.Identity) bool
}

type Config struct {
	MaxContentLength int
	AppendTimeout    time.Duration
}

type Relay struct {
	store    Appender
	rooms    SubscriberSource
	presence Toucher
	cfg      Config
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
}

type Option func(*Relay)

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(r *Relay) { r.newID = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.log = l }
}

func New(s Appender, rs SubscriberSource, p Toucher, cfg Config, opts ...Option) *Relay {
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = DefaultAppendTimeout
	}
	r := &Relay{
		store:    s,
		rooms:    rs,
		presence: p,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate trims raw and checks it against the content rules. Content is
// otherwise kept as sent; escaping is left to whoever renders it.
func (r *Relay) Validate(roomID, raw string) (string, error) {
	if strings.TrimSpace(roomID) == "" {
		return "", fmt.Errorf("%w: room is required", domain.ErrValidation)
	}
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", fmt.Errorf("%w: message is empty", domain.ErrValidation)
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: message is not valid UTF-8", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > r.cfg.MaxContentLength {
		return "", fmt.Errorf("%w: message is %d characters, limit is %d", domain.ErrValidation, n, r.cfg.MaxContentLength)
	}
	return content, nil
}

// Relay persists the message and only then delivers it to the room's current
// subscribers, sender included. A failed or timed out append is a
// domain.ErrPersistence and nothing is delivered.
func (r *Relay) Relay(ctx context.Context, from domain.Identity, roomID, raw string) (domain.Message, error) {
	content, err := r.Validate(roomID, raw)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		return domain.Message{}, err
	}

	m := domain.Message{
		ID:         r.newID(),
		RoomID:     roomID,
		SenderID:   from.UserID,
		SenderName: from.Username,
		Content:    content,
		CreatedAt:  r.now().UTC().Truncate(time.Microsecond),
	}

	storedID, err := r.append(ctx, m)
	if err != nil {
		metrics.MessagesRejected.WithLabelValues("persistence").Inc()
		r.log.Error("relay.append failed", "room", roomID, "user", from.UserID, "err", err)
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if storedID != "" {
		m.ID = storedID
	}

	delivered := 0
	for _, s := range r.rooms.Subscribers(roomID) {
		if err := s.Deliver(m); err != nil {
			if !errors.Is(err, domain.ErrConnClosed) {
				r.log.Warn("relay.deliver failed", "room", roomID, "conn", s.ID(), "err", err)
			}
			continue
		}
		delivered++
	}
	metrics.MessagesRelayed.Inc()
	metrics.Deliveries.Add(float64(delivered))

	if r.presence != nil {
		r.presence.Touch(from)
	}

	return m, nil
}

func (r *Relay) append(ctx context.Context, m domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AppendTimeout)
	defer cancel()

	start := time.Now()
	defer func() { metrics.AppendDuration.Observe(time.Since(start).Seconds()) }()

	type result struct {
		id  string
		err error
	}
	// bounded by AppendTimeout even if the store ignores ctx
	done := make(chan result, 1)
	st := r.store
	go func() {
		id, err := st.Append(ctx, m)
		done <- result{id, err}
	}()

	select {
	case res := <-done:
		return res.id, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
