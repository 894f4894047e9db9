package security

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const passwordSpecials = "!@#$%^&*"

type BcryptConfig struct {
	Cost      int // по умолчанию 12
	MinLength int // по умолчанию 8
}

// CheckPasswordPolicy requires minLen characters with at least one upper,
// lower, digit and one of !@#$%^&*.
func CheckPasswordPolicy(plain string, minLen int) error {
	if len([]rune(plain)) < minLen {
		return ErrPasswordTooShort
	}
	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrPasswordTooWeak
	}

	return nil
}

func HashPassword(plain string, cfg *BcryptConfig) (string, error) {
	minLen := 8
	cost := 12

	if cfg != nil {
		if cfg.MinLength > 0 {
			minLen = cfg.MinLength
		}
		if cfg.Cost > 0 {
			cost = cfg.Cost
		}
	}

	if err := CheckPasswordPolicy(plain, minLen); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
