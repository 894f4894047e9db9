package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/store"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
	"github.com/cwrk-planet/chat-relay/pkg/logger"
)

// statusFor maps domain errors to HTTP codes and client-safe messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid cursor"
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized, "please log in"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid username or password"
	case errors.Is(err, domain.ErrAccountLocked):
		return http.StatusLocked, "account is temporarily locked"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "too many attempts, try again later"
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, "username is taken"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "storage unavailable, retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(op+" failed", "err", err)
	}
	httputil.Error(ctx, w, status, msg, nil)
}
