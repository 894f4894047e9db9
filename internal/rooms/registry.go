// Package rooms maps room ids to the connections subscribed to them.
package rooms

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

// Subscriber receives messages relayed to the rooms it joined.
type Subscriber interface {
	ID() string
	Deliver(m domain.Message) error
}

type Set map[string]Subscriber

type RoomInfo struct {
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
}

// Registry creates rooms lazily on first join and never deletes them: an
// empty room is just a room with no subscribers.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]Set
	joined map[string]map[string]struct{} // subscriber id -> room ids
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]Set),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join is idempotent; it reports whether s was newly added.
func (r *Registry) Join(roomID string, s Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(Set)
		r.rooms[roomID] = members
	}
	if _, ok := members[s.ID()]; ok {
		return false
	}
	members[s.ID()] = s

	rs, ok := r.joined[s.ID()]
	if !ok {
		rs = make(map[string]struct{})
		r.joined[s.ID()] = rs
	}
	rs[roomID] = struct{}{}

	return true
}

// Leave is idempotent; it reports whether s was a member.
func (r *Registry) Leave(roomID string, s Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(roomID, s.ID())
}

// LeaveAll removes s from every room it joined and returns those rooms.
func (r *Registry) LeaveAll(s Subscriber) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for roomID := range r.joined[s.ID()] {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.leaveLocked(roomID, s.ID())
	}
	delete(r.joined, s.ID())

	sort.Strings(left)
	return left
}

func (r *Registry) leaveLocked(roomID, subID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[subID]; !ok {
		return false
	}
	delete(members, subID)

	if rs, ok := r.joined[subID]; ok {
		delete(rs, roomID)
		if len(rs) == 0 {
			delete(r.joined, subID)
		}
	}
	return true
}

// Subscribers returns a copy of the room's members; joins and leaves after
// the call do not affect it.
func (r *Registry) Subscribers(roomID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]Subscriber, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// RoomsOf lists the rooms s has joined, sorted.
func (r *Registry) RoomsOf(s Subscriber) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.joined[s.ID()]))
	for roomID := range r.joined[s.ID()] {
		out = append(out, roomID)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Rooms lists every room ever joined with its current subscriber count.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, RoomInfo{ID: id, Subscribers: len(members)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
