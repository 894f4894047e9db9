package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records token ids (jti) that must no longer authenticate.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const DefaultRevocationPrefix = "jwt:revoked"

type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = DefaultRevocationPrefix
	}
	return &RedisRevocationList{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisRevocationList) key(jti string) string {
	return fmt.Sprintf("%s:%s", l.prefix, jti)
}

// Revoke keeps the key until the token would have expired anyway.
func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}

	return nil
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis command failed: %w", err)
	}

	return n == 1, nil
}

// MemoryRevocationList is the single-instance fallback when redis is disabled.
type MemoryRevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{entries: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryRevocationList) WithClock(now func() time.Time) *MemoryRevocationList {
	l.now = now
	return l
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.entries {
		if !exp.After(now) {
			delete(l.entries, k)
		}
	}
	if until.After(now) {
		l.entries[jti] = until
	}

	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.entries[jti]

	return ok && until.After(l.now()), nil
}
