// Package memstore keeps messages and users in process memory. It backs
// store.driver=memory and the tests of packages above the store layer.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/store"
)

// MessageStore keeps at most capacity messages per room, dropping the oldest.
type MessageStore struct {
	mu       sync.RWMutex
	rooms    map[string][]domain.Message
	capacity int
}

func NewMessageStore(capacity int) *MessageStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MessageStore{rooms: make(map[string][]domain.Message), capacity: capacity}
}

func (s *MessageStore) Append(ctx context.Context, m domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.rooms[m.RoomID], m)
	if len(msgs) > s.capacity {
		msgs = msgs[len(msgs)-s.capacity:]
	}
	s.rooms[m.RoomID] = msgs

	return m.ID, nil
}

func (s *MessageStore) History(ctx context.Context, roomID, before string, limit int) ([]domain.Message, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	limit = store.ClampLimit(limit)
	cur, err := store.DecodeCursor(before)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	s.mu.RLock()
	all := make([]domain.Message, len(s.rooms[roomID]))
	copy(all, s.rooms[roomID])
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := make([]domain.Message, 0, limit)
	for _, m := range all {
		if cur != nil && !cur.Before(m.CreatedAt, m.ID) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	return out, store.NextCursor(out, limit), nil
}
