package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	row := userRow{
		ID:            u.ID,
		Username:      u.Username,
		UsernameKey:   strings.ToLower(u.Username),
		PasswordHash:  u.PasswordHash,
		LoginAttempts: u.LoginAttempts,
		LockUntil:     u.LockUntil,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username_key = ?", strings.ToLower(username))
}

func (r *UserRepository) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).First(&row, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateLoginState writes attempts, lock and last login. Select is used so a
// cleared lock (nil) is written too.
func (r *UserRepository) UpdateLoginState(ctx context.Context, u *domain.User) error {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", u.ID).
		Select("login_attempts", "lock_until", "last_login", "updated_at").
		Updates(userRow{
			LoginAttempts: u.LoginAttempts,
			LockUntil:     u.LockUntil,
			LastLogin:     u.LastLogin,
			UpdatedAt:     u.UpdatedAt,
		})
	if err := res.Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
