package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[string]*domain.User), byUsername: make(map[string]string)}
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, ok := s.byUsername[key]; ok {
		return domain.ErrUserExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byUsername[key] = u.ID

	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byUsername[strings.ToLower(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	return s.GetByID(ctx, id)
}

func (s *UserStore) UpdateLoginState(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.LoginAttempts = u.LoginAttempts
	cur.LockUntil = u.LockUntil
	cur.LastLogin = u.LastLogin
	cur.UpdatedAt = u.UpdatedAt

	return nil
}
