package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/memstore"
	"github.com/cwrk-planet/chat-relay/internal/presence"
	"github.com/cwrk-planet/chat-relay/internal/rooms"
)

type recorder struct {
	id     string
	mu     sync.Mutex
	got    []domain.Message
	closed bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrConnClosed
	}
	r.got = append(r.got, m)
	return nil
}

func (r *recorder) messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.got...)
}

type slowStore struct{ delay time.Duration }

func (s slowStore) Append(ctx context.Context, m domain.Message) (string, error) {
	time.Sleep(s.delay)
	return m.ID, nil
}

type failingStore struct{}

func (failingStore) Append(context.Context, domain.Message) (string, error) {
	return "", errors.New("connection refused")
}

type idStore struct{}

func (idStore) Append(context.Context, domain.Message) (string, error) { return "stored-42", nil }

var (
	alice = domain.Identity{UserID: "u-1", Username: "alice"}
	bob   = domain.Identity{UserID: "u-2", Username: "bob"}
)

type fixture struct {
	relay    *Relay
	registry *rooms.Registry
	tracker  *presence.Tracker
	store    *memstore.MessageStore
	sender   *recorder
	other    *recorder
}

func newFixture(t *testing.T, s Appender, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		registry: rooms.NewRegistry(),
		tracker:  presence.NewTracker(),
		store:    memstore.NewMessageStore(100),
		sender:   &recorder{id: "c-alice"},
		other:    &recorder{id: "c-bob"},
	}
	if s == nil {
		s = f.store
	}
	f.relay = New(s, f.registry, f.tracker, cfg)
	f.tracker.Register(alice, f.sender)
	f.tracker.Register(bob, f.other)
	f.registry.Join("general", f.sender)
	f.registry.Join("general", f.other)
	return f
}

func TestRelay_BroadcastsToAllSubscribersIncludingSender(t *testing.T) {
	f := newFixture(t, nil, Config{})
	before := time.Now().UTC()

	m, err := f.relay.Relay(context.Background(), alice, "general", "hello")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, alice, m.Sender())
	assert.False(t, m.CreatedAt.Before(before))
	assert.Equal(t, time.UTC, m.CreatedAt.Location())

	assert.Equal(t, []domain.Message{m}, f.sender.messages())
	assert.Equal(t, []domain.Message{m}, f.other.messages())

	stored, _, err := f.store.History(context.Background(), "general", "", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, m.ID, stored[0].ID)
}

func TestRelay_OtherRoomsDoNotReceive(t *testing.T) {
	f := newFixture(t, nil, Config{})
	outsider := &recorder{id: "c-out"}
	f.registry.Join("random", outsider)

	_, err := f.relay.Relay(context.Background(), alice, "general", "hi")
	require.NoError(t, err)
	assert.Empty(t, outsider.messages())
}

func TestRelay_ValidationErrors(t *testing.T) {
	f := newFixture(t, nil, Config{})

	tests := []struct {
		name, room, content string
	}{
		{"empty", "general", ""},
		{"whitespace only", "general", "  \n\t "},
		{"too long", "general", strings.Repeat("a", 1001)},
		{"invalid utf8", "general", "bad \xff bytes"},
		{"no room", "", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.relay.Relay(context.Background(), alice, tt.room, tt.content)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.sender.messages())
	assert.Empty(t, f.other.messages())
}

func TestRelay_LengthCountsCharactersNotBytes(t *testing.T) {
	f := newFixture(t, nil, Config{})

	m, err := f.relay.Relay(context.Background(), alice, "general", strings.Repeat("é", 1000))
	require.NoError(t, err)
	assert.Equal(t, 1000, len([]rune(m.Content)))

	_, err = f.relay.Relay(context.Background(), alice, "general", "  "+strings.Repeat("x", 1000)+"  ")
	assert.NoError(t, err, "surrounding whitespace is trimmed before the length check")
}

func TestRelay_ContentKeptVerbatim(t *testing.T) {
	f := newFixture(t, nil, Config{})

	m, err := f.relay.Relay(context.Background(), alice, "general", "  <b>hi</b> & \"bye\"  ")
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b> & \"bye\"", m.Content)
}

func TestRelay_PersistenceFailureDoesNotBroadcast(t *testing.T) {
	f := newFixture(t, failingStore{}, Config{})

	_, err := f.relay.Relay(context.Background(), alice, "general", "hello")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, f.sender.messages())
	assert.Empty(t, f.other.messages())
}

func TestRelay_PersistenceTimeout(t *testing.T) {
	f := newFixture(t, slowStore{delay: 200 * time.Millisecond}, Config{AppendTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := f.relay.Relay(context.Background(), alice, "general", "hello")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Empty(t, f.other.messages())

	// the sender may retry the same content once the store recovers;
	// the abandoned append is still running against the slow store
	recovered := New(f.store, f.registry, f.tracker, Config{})
	m, err := recovered.Relay(context.Background(), alice, "general", "hello")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{m}, f.other.messages())
}

func TestRelay_UsesStoredID(t *testing.T) {
	f := newFixture(t, idStore{}, Config{})
	m, err := f.relay.Relay(context.Background(), alice, "general", "hello")
	require.NoError(t, err)
	assert.Equal(t, "stored-42", m.ID)
}

func TestRelay_ClosedSubscriberIsSkipped(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.other.closed = true

	m, err := f.relay.Relay(context.Background(), alice, "general", "hello")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{m}, f.sender.messages())
}

func TestRelay_TouchesSenderPresence(t *testing.T) {
	now := time.Unix(1_000, 0)
	clock := func() time.Time { return now }
	tracker := presence.NewTracker(presence.WithClock(clock))
	registry := rooms.NewRegistry()
	r := New(memstore.NewMessageStore(10), registry, tracker, Config{}, WithClock(clock))

	tracker.Register(alice, &recorder{id: "c"})
	now = now.Add(4 * time.Minute)
	_, err := r.Relay(context.Background(), alice, "general", "still here")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	assert.Empty(t, tracker.Sweep(5*time.Minute))
}

func TestRelay_SameSenderOrderPreserved(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := f.relay.Relay(ctx, alice, "general", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	got := f.other.messages()
	require.Len(t, got, 50)
	for i, m := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
}

func TestRelay_ConcurrentSendersKeepPerSenderOrder(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []domain.Identity{alice, bob} {
		wg.Add(1)
		go func(id domain.Identity) {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				_, err := f.relay.Relay(ctx, id, "general", fmt.Sprintf("%s-%02d", id.Username, i))
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	last := map[string]string{}
	for _, m := range f.other.messages() {
		assert.Greater(t, m.Content, last[m.SenderName])
		last[m.SenderName] = m.Content
	}
	assert.Len(t, f.other.messages(), 60)
}
