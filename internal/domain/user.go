package domain

import (
	"strings"
	"time"
)

type User struct {
	ID            string
	Username      string
	PasswordHash  string
	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ожидает уже посчитанный хеш пароля
func NewUser(id, username, passwordHash string, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(passwordHash) == "" {
		return nil, ErrValidation
	}

	return &User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// RegisterFailedLogin bumps the attempt counter and locks the account once it
// reaches maxAttempts. An expired lock is cleared first.
func (u *User) RegisterFailedLogin(now time.Time, maxAttempts int, lockFor time.Duration) {
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LockUntil = nil
		u.LoginAttempts = 0
	}
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		until := now.Add(lockFor)
		u.LockUntil = &until
	}
	u.UpdatedAt = now
}

func (u *User) RegisterSuccessfulLogin(now time.Time) {
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &now
	u.UpdatedAt = now
}
