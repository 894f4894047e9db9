package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/security"
)

type TokenVerifier interface {
	ParseAndValidate(token string) (*security.AccessClaims, error)
}

// Authenticator turns a bearer credential into an Identity. It performs no
// writes: a rejected credential leaves no trace anywhere else.
type Authenticator struct {
	verifier TokenVerifier
	revoked  RevocationList
	log      *slog.Logger
}

func NewAuthenticator(v TokenVerifier, revoked RevocationList, log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{verifier: v, revoked: revoked, log: log}
}

func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := a.Claims(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}

	return claims.Identity(), nil
}

// Claims verifies the token and returns its claims. Every failure wraps
// domain.ErrAuthentication.
func (a *Authenticator) Claims(ctx context.Context, token string) (*security.AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuthentication)
	}

	claims, err := a.verifier.ParseAndValidate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username claim", domain.ErrAuthentication)
	}

	if a.revoked != nil && claims.Id != "" {
		revoked, err := a.revoked.IsRevoked(ctx, claims.Id)
		if err != nil {
			// fail open: a revocation store outage must not lock out every user
			a.log.Error("revocation lookup failed", "jti", claims.Id, "err", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", domain.ErrAuthentication)
		}
	}

	return claims, nil
}

// TokenFromRequest reads the credential from the Authorization header or the
// access_token/token query parameter (browsers cannot set headers on websocket
// handshakes).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	q := r.URL.Query()
	if t := q.Get("access_token"); t != "" {
		return t
	}

	return q.Get("token")
}
