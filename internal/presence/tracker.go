// Package presence tracks which identities are connected, through which
// connection, and when they were last active.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

// Handle is the live connection an entry points at.
type Handle interface {
	ID() string
}

type Entry struct {
	Identity    domain.Identity
	Handle      Handle
	ConnectedAt time.Time
	LastActive  time.Time

	mirroredAt time.Time
}

// Tracker holds at most one entry per user id. Register, Touch, Remove and
// Sweep are serialized by one mutex, so a sweep never evicts an entry that a
// concurrent touch has just refreshed.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time

	mirror        Mirror
	mirrorTimeout time.Duration
	mirrorEvery   time.Duration
	log           *slog.Logger
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMirror publishes entries to m. Touches refresh the mirror at most once
// per refreshEvery.
func WithMirror(m Mirror, timeout, refreshEvery time.Duration) Option {
	return func(t *Tracker) {
		t.mirror = m
		t.mirrorTimeout = timeout
		t.mirrorEvery = refreshEvery
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries:       make(map[string]*Entry),
		now:           time.Now,
		mirrorTimeout: time.Second,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register inserts or replaces the entry for id.UserID and returns the handle
// it replaced, if any.
func (t *Tracker) Register(id domain.Identity, h Handle) Handle {
	now := t.now()
	e := &Entry{Identity: id, Handle: h, ConnectedAt: now, LastActive: now, mirroredAt: now}

	t.mu.Lock()
	var replaced Handle
	if prev, ok := t.entries[id.UserID]; ok && prev.Handle != h {
		replaced = prev.Handle
	}
	t.entries[id.UserID] = e
	snapshot := *e
	t.mu.Unlock()

	t.mirrorDo(func(ctx context.Context) error { return t.mirror.Set(ctx, snapshot) })

	return replaced
}

// Touch refreshes last activity. It reports false when id has no entry.
func (t *Tracker) Touch(id domain.Identity) bool {
	now := t.now()

	t.mu.Lock()
	e, ok := t.entries[id.UserID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	e.LastActive = now
	refresh := t.mirror != nil && now.Sub(e.mirroredAt) >= t.mirrorEvery
	if refresh {
		e.mirroredAt = now
	}
	t.mu.Unlock()

	if refresh {
		t.mirrorDo(func(ctx context.Context) error { return t.mirror.Refresh(ctx, id.UserID) })
	}
	return true
}

// Remove deletes the entry for id only while it still points at h, so a
// replaced connection closing late cannot drop its successor. A nil h removes
// unconditionally.
func (t *Tracker) Remove(id domain.Identity, h Handle) bool {
	t.mu.Lock()
	e, ok := t.entries[id.UserID]
	if !ok || (h != nil && e.Handle != h) {
		t.mu.Unlock()
		return false
	}
	delete(t.entries, id.UserID)
	connID := handleID(e.Handle)
	t.mu.Unlock()

	t.mirrorDo(func(ctx context.Context) error { return t.mirror.Delete(ctx, id.UserID, connID) })
	return true
}

// Sweep removes every entry idle for longer than maxIdle and returns them.
func (t *Tracker) Sweep(maxIdle time.Duration) []Entry {
	now := t.now()

	t.mu.Lock()
	var evicted []Entry
	for uid, e := range t.entries {
		if now.Sub(e.LastActive) > maxIdle {
			evicted = append(evicted, *e)
			delete(t.entries, uid)
		}
	}
	t.mu.Unlock()

	// a Register racing this loop has already mirrored its own conn id, which
	// the conditional delete leaves alone
	for _, e := range evicted {
		uid, connID := e.Identity.UserID, handleID(e.Handle)
		t.mirrorDo(func(ctx context.Context) error { return t.mirror.Delete(ctx, uid, connID) })
	}
	return evicted
}

// Run sweeps every interval until ctx is done, handing each evicted entry to
// onEvict.
func (t *Tracker) Run(ctx context.Context, interval, maxIdle time.Duration, onEvict func(Entry)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			evicted := t.Sweep(maxIdle)
			if len(evicted) > 0 {
				t.log.Info("presence sweep", "evicted", len(evicted), "remaining", t.Len())
			}
			for _, e := range evicted {
				if onEvict != nil {
					onEvict(e)
				}
			}
		}
	}
}

func (t *Tracker) Get(userID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns a snapshot ordered by username.
func (t *Tracker) List() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Username < out[j].Identity.Username })
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Tracker) mirrorDo(fn func(ctx context.Context) error) {
	if t.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.mirrorTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		t.log.Warn("presence mirror failed", "err", err)
	}
}

func handleID(h Handle) string {
	if h == nil {
		return ""
	}
	return h.ID()
}
