package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

type UserRepository struct {
	q querier
}

// NewUserRepository - конструктор от пула (*pgxpool.Pool)
func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.q.Exec(ctx, queryCreateUser,
		u.ID, u.Username, u.PasswordHash, u.LoginAttempts, u.LockUntil, u.LastLogin, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapPgError(err, domain.ErrUserExists)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, queryGetUserByID, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, queryGetUserByUsername, username)
}

func (r *UserRepository) UpdateLoginState(ctx context.Context, u *domain.User) error {
	tag, err := r.q.Exec(ctx, queryUpdateLoginState, u.ID, u.LoginAttempts, u.LockUntil, u.LastLogin, u.UpdatedAt)
	if err != nil {
		return mapPgError(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, sql string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRow(ctx, sql, arg).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.LoginAttempts,
		&u.LockUntil,
		&u.LastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, mapPgError(err, nil)
	}
	return &u, nil
}
