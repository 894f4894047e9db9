package rooms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

type sub struct{ id string }

func (s *sub) ID() string                   { return s.id }
func (s *sub) Deliver(domain.Message) error { return nil }

func ids(subs []Subscriber) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.ID())
	}
	return out
}

func TestJoin_Idempotent(t *testing.T) {
	r := NewRegistry()
	c := &sub{"c1"}

	assert.True(t, r.Join("general", c))
	assert.False(t, r.Join("general", c))

	assert.Equal(t, []string{"c1"}, ids(r.Subscribers("general")))
}

func TestLeave_Idempotent(t *testing.T) {
	r := NewRegistry()
	c, d := &sub{"c1"}, &sub{"c2"}
	r.Join("general", c)
	r.Join("general", d)

	assert.True(t, r.Leave("general", c))
	assert.False(t, r.Leave("general", c))
	assert.False(t, r.Leave("unknown", c))

	assert.Equal(t, []string{"c2"}, ids(r.Subscribers("general")))
}

func TestLeaveAll_RemovesFromEveryRoom(t *testing.T) {
	r := NewRegistry()
	c, d := &sub{"c1"}, &sub{"c2"}
	for i := 0; i < 10; i++ {
		r.Join(fmt.Sprintf("room-%d", i), c)
	}
	r.Join("room-0", d)

	left := r.LeaveAll(c)
	assert.Len(t, left, 10)

	for _, info := range r.Rooms() {
		assert.NotContains(t, ids(r.Subscribers(info.ID)), "c1", info.ID)
	}
	assert.Empty(t, r.RoomsOf(c))
	assert.Equal(t, []string{"c2"}, ids(r.Subscribers("room-0")))
	assert.Empty(t, r.LeaveAll(c))
}

func TestRooms_EmptyRoomsRemain(t *testing.T) {
	r := NewRegistry()
	c := &sub{"c1"}
	r.Join("b", c)
	r.Join("a", c)
	r.Leave("b", c)

	assert.Equal(t, []RoomInfo{{ID: "a", Subscribers: 1}, {ID: "b", Subscribers: 0}}, r.Rooms())
	assert.Equal(t, []string{"a"}, r.RoomsOf(c))
}

func TestSubscribers_IsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Join("general", &sub{"c1"})

	snap := r.Subscribers("general")
	r.Join("general", &sub{"c2"})
	r.Leave("general", &sub{"c1"})

	require.Len(t, snap, 1)
	assert.Equal(t, "c1", snap[0].ID())
	assert.Empty(t, r.Subscribers("missing"))
}

func TestConcurrentJoinLeaveAndIterate(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(2)
		s := &sub{fmt.Sprintf("c%d", i)}
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Join("general", s)
				r.Leave("general", s)
			}
			r.Join("general", s)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, sub := range r.Subscribers("general") {
					_ = sub.Deliver(domain.Message{})
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, r.Subscribers("general"), 16)
}
