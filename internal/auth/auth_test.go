package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/security"
)

var alice = domain.Identity{UserID: "u-1", Username: "alice"}

func newSigner() *security.JWTSigner {
	return security.NewHMACSigner([]byte("secret"), "iss", "aud", time.Hour, 0)
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return errors.New("down") }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func TestAuthenticate_ValidTokenMatchesClaims(t *testing.T) {
	s := newSigner()
	tok, _, err := s.SignAccessToken(alice, time.Now())
	require.NoError(t, err)

	a := NewAuthenticator(s, NewMemoryRevocationList(), nil)
	id, err := a.Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, alice, id)
}

func TestAuthenticate_Rejections(t *testing.T) {
	s := newSigner()
	expired, _, err := s.SignAccessToken(alice, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	foreign, _, err := security.NewHMACSigner([]byte("other"), "iss", "aud", time.Hour, 0).SignAccessToken(alice, time.Now())
	require.NoError(t, err)

	a := NewAuthenticator(s, nil, nil)
	for name, tok := range map[string]string{
		"empty":    "",
		"expired":  expired,
		"foreign":  foreign,
		"garbage":  "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tok)
			assert.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}
}

func TestAuthenticate_RevokedToken(t *testing.T) {
	s := newSigner()
	tok, claims, err := s.SignAccessToken(alice, time.Now())
	require.NoError(t, err)

	revoked := NewMemoryRevocationList()
	a := NewAuthenticator(s, revoked, nil)
	require.NoError(t, revoked.Revoke(context.Background(), claims.Id, claims.ExpiresAtTime()))

	_, err = a.Authenticate(context.Background(), tok)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestAuthenticate_RevocationOutageFailsOpen(t *testing.T) {
	s := newSigner()
	tok, _, err := s.SignAccessToken(alice, time.Now())
	require.NoError(t, err)

	id, err := NewAuthenticator(s, failingRevocations{}, nil).Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, alice, id)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=q1", nil)
	assert.Equal(t, "q1", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws?access_token=q2&token=q1", nil)
	assert.Equal(t, "q2", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws?token=q1", nil)
	r.Header.Set("Authorization", "Bearer h1")
	assert.Equal(t, "h1", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.Empty(t, TokenFromRequest(r))
}

func TestMemoryRevocationList_Expiry(t *testing.T) {
	now := time.Now()
	l := NewMemoryRevocationList()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Revoke(ctx, "j1", now.Add(time.Minute)))
	require.NoError(t, l.Revoke(ctx, "j-old", now.Add(-time.Minute)))

	ok, _ := l.IsRevoked(ctx, "j1")
	assert.True(t, ok)
	ok, _ = l.IsRevoked(ctx, "j-old")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.IsRevoked(ctx, "j1")
	assert.False(t, ok)
}

func TestRedisRevocationList(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRevocationList(client, "")
	ctx := context.Background()

	require.NoError(t, l.Revoke(ctx, "j1", time.Now().Add(time.Minute)))
	ok, err := l.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("jwt:revoked:j1"))

	mr.FastForward(2 * time.Minute)
	ok, err = l.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)
}
