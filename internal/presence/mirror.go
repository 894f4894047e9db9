package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror publishes presence outside the process. It is advisory: the tracker
// stays the source of truth and mirror errors are only logged.
type Mirror interface {
	Set(ctx context.Context, e Entry) error
	Refresh(ctx context.Context, userID string) error
	// Delete removes the record only while it still belongs to connID; an
	// empty connID deletes unconditionally.
	Delete(ctx context.Context, userID, connID string) error
}

type mirrorRecord struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// RedisMirror stores presence:<userID> keys that expire after ttl unless
// refreshed.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (m *RedisMirror) Set(ctx context.Context, e Entry) error {
	rec := mirrorRecord{
		UserID:      e.Identity.UserID,
		Username:    e.Identity.Username,
		ConnectedAt: e.ConnectedAt,
	}
	if e.Handle != nil {
		rec.ConnID = e.Handle.ID()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	return m.client.Set(ctx, presenceKey(e.Identity.UserID), data, m.ttl).Err()
}

// Refresh is a no-op when the key is already gone.
func (m *RedisMirror) Refresh(ctx context.Context, userID string) error {
	return m.client.Expire(ctx, presenceKey(userID), m.ttl).Err()
}

// deleteIfOwner: KEYS[1] presence key, ARGV[1] conn id.
var deleteIfOwner = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return 0
	end
	local rec = cjson.decode(raw)
	if rec.conn_id ~= ARGV[1] then
		return 0
	end
	return redis.call('DEL', KEYS[1])
`)

func (m *RedisMirror) Delete(ctx context.Context, userID, connID string) error {
	if connID == "" {
		return m.client.Del(ctx, presenceKey(userID)).Err()
	}
	return deleteIfOwner.Run(ctx, m.client, []string{presenceKey(userID)}, connID).Err()
}
