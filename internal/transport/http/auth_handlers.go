package http

import (
	"context"
	"net"
	"net/http"

	"github.com/cwrk-planet/chat-relay/internal/accounts"
	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/security"
	httpmw "github.com/cwrk-planet/chat-relay/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
)

type AccountService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password, clientIP string) (*accounts.LoginResult, error)
	Logout(ctx context.Context, claims *security.AccessClaims) error
	Session(ctx context.Context, id domain.Identity) (*domain.User, error)
}

type AuthHandlers struct {
	Accounts AccountService
}

// POST /auth/register
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	u, err := h.Accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(r.Context(), w, "auth.register", err)
		return
	}

	httputil.JSON(w, http.StatusCreated, map[string]any{"data": toUserResponse(u)})
}

// POST /auth/login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json", nil)
		return
	}

	res, err := h.Accounts.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		writeError(r.Context(), w, "auth.login", err)
		return
	}

	httputil.OK(w, LoginResponse{
		User:        toUserResponse(res.User),
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
	})
}

// POST /auth/logout
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Logout(r.Context(), httpmw.ClaimsFromCtx(r.Context())); err != nil {
		writeError(r.Context(), w, "auth.logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /auth/session
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		httputil.Error(r.Context(), w, http.StatusUnauthorized, "please log in", nil)
		return
	}

	u, err := h.Accounts.Session(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, "auth.session", err)
		return
	}
	httputil.OK(w, toUserResponse(u))
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr when a proxy
// header is present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
