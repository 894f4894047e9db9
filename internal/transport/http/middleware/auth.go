package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/chat-relay/internal/auth"
	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/metrics"
	"github.com/cwrk-planet/chat-relay/internal/security"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
	"github.com/cwrk-planet/chat-relay/pkg/logger"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

type ClaimsVerifier interface {
	Claims(ctx context.Context, token string) (*security.AccessClaims, error)
}

// AuthMiddleware требует валидный access token (Bearer или ?access_token=)
func AuthMiddleware(v ClaimsVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			claims, err := v.Claims(r.Context(), token)
			if err != nil {
				reason := "invalid_token"
				if token == "" {
					reason = "missing_token"
				}
				metrics.AuthFailures.WithLabelValues(reason).Inc()
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "please log in", nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			ctx = logger.WithAttrs(ctx, slog.String("user", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromCtx(ctx context.Context) *security.AccessClaims {
	if c, ok := ctx.Value(ctxKeyClaims).(*security.AccessClaims); ok {
		return c
	}
	return nil
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	c := ClaimsFromCtx(ctx)
	if c == nil {
		return domain.Identity{}, false
	}
	return c.Identity(), true
}
