package security

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrInvalidAudience  = errors.New("invalid audience")
	ErrTokenExpired     = errors.New("token expired or not valid yet")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooWeak  = errors.New("password must contain upper, lower, digit and special character")
)
