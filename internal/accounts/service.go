package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/chat-relay/internal/auth"
	"github.com/cwrk-planet/chat-relay/internal/domain"
	"github.com/cwrk-planet/chat-relay/internal/ratelimit"
	"github.com/cwrk-planet/chat-relay/internal/security"
	"github.com/cwrk-planet/chat-relay/internal/store"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

type LoginPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

type LoginResult struct {
	User        *domain.User
	AccessToken string
	ExpiresAt   time.Time
}

// Service issues the credentials the websocket authenticator verifies.
type Service struct {
	users      store.UserStore
	jwt        *security.JWTSigner
	revoked    auth.RevocationList
	limiter    ratelimit.Limiter
	passPolicy security.BcryptConfig
	policy     LoginPolicy
	now        func() time.Time
}

func NewService(
	users store.UserStore,
	jwt *security.JWTSigner,
	revoked auth.RevocationList,
	limiter ratelimit.Limiter,
	passPolicy security.BcryptConfig,
	policy LoginPolicy,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}

	return &Service{
		users:      users,
		jwt:        jwt,
		revoked:    revoked,
		limiter:    limiter,
		passPolicy: passPolicy,
		policy:     policy,
		now:        now,
	}
}

func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: username must be 3-30 characters of letters, digits, _ or -", domain.ErrValidation)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password, &s.passPolicy)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) || errors.Is(err, security.ErrPasswordTooWeak) {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		slog.Error("accounts.register.hashPassword failed", slog.Any("err", err))
		return nil, err
	}

	u, err := domain.NewUser(uuid.NewString(), username, hash, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, domain.ErrUserExists) {
			slog.Error("accounts.register.create failed", slog.Any("err", err))
		}
		return nil, err
	}
	slog.Info("user registered", "user", u.ID, "username", u.Username)

	return u, nil
}

// Login checks the per-IP rate limit, the account lock and the password, in
// that order, and issues an access token.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	if s.limiter != nil {
		res, err := s.limiter.Allow(ctx, clientIP)
		switch {
		case err != nil:
			slog.Error("accounts.login.rateLimit failed", slog.Any("err", err))
		case !res.Allowed:
			return nil, fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, res.ResetAt.UTC().Format(time.RFC3339))
		}
	}

	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		slog.Error("accounts.login.getByUsername failed", slog.Any("err", err))
		return nil, err
	}

	now := s.now()
	if u.IsLocked(now) {
		return nil, fmt.Errorf("%w: until %s", domain.ErrAccountLocked, u.LockUntil.UTC().Format(time.RFC3339))
	}

	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		u.RegisterFailedLogin(now, s.policy.MaxAttempts, s.policy.LockDuration)
		if uerr := s.users.UpdateLoginState(ctx, u); uerr != nil {
			slog.Error("accounts.login.updateLoginState failed", slog.Any("err", uerr))
		}
		if u.IsLocked(now) {
			slog.Warn("account locked", "user", u.ID, "attempts", u.LoginAttempts)
		}
		return nil, domain.ErrInvalidCredentials
	}

	u.RegisterSuccessfulLogin(now)
	if err := s.users.UpdateLoginState(ctx, u); err != nil {
		slog.Error("accounts.login.updateLoginState failed", slog.Any("err", err))
		return nil, err
	}

	token, claims, err := s.jwt.SignAccessToken(u.Identity(), now)
	if err != nil {
		slog.Error("accounts.login.signAccessToken failed", slog.Any("err", err))
		return nil, err
	}

	return &LoginResult{User: u, AccessToken: token, ExpiresAt: claims.ExpiresAtTime()}, nil
}

// Logout revokes the token's jti until the token would expire.
func (s *Service) Logout(ctx context.Context, claims *security.AccessClaims) error {
	if claims == nil || claims.Id == "" {
		return fmt.Errorf("%w: token has no id", domain.ErrValidation)
	}
	if err := s.revoked.Revoke(ctx, claims.Id, claims.ExpiresAtTime()); err != nil {
		slog.Error("accounts.logout.revoke failed", slog.Any("err", err))
		return err
	}

	return nil
}

func (s *Service) Session(ctx context.Context, id domain.Identity) (*domain.User, error) {
	return s.users.GetByID(ctx, id.UserID)
}
