package domain

import "errors"

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrPersistence    = errors.New("persistence failed")

	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("slow consumer")
	ErrRateLimited  = errors.New("rate limited")

	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrNotFound           = errors.New("not found")
)
