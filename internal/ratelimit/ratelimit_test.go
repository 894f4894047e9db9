package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func exerciseLimiter(t *testing.T, l Limiter, c *clock) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "hit %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)

	// other keys are independent
	res, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	c.advance(time.Minute + time.Millisecond)
	res, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "5.6.7.8"))
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	c := &clock{t: time.Now()}
	l := NewMemoryLimiter(3, time.Minute)
	l.now = c.now

	exerciseLimiter(t, l, c)
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{t: time.Now()}
	l := NewRedisLimiter(client, "login:", 3, time.Minute)
	l.now = c.now

	exerciseLimiter(t, l, c)
	assert.True(t, mr.Exists("login:1.2.3.4"))
}

func TestMemoryLimiter_ResetAtIsOldestPlusWindow(t *testing.T) {
	c := &clock{t: time.Now()}
	l := NewMemoryLimiter(1, time.Hour)
	l.now = c.now
	first := c.t

	_, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	c.advance(10 * time.Minute)

	res, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, first.Add(time.Hour), res.ResetAt)
}

func TestTokenBucket(t *testing.T) {
	c := &clock{t: time.Now()}
	b := newTokenBucket(2, time.Second, c.now)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	c.advance(500 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	c.advance(10 * time.Second)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}
