package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"Sh0rt!", ErrPasswordTooShort},
		{"alllowercase1!", ErrPasswordTooWeak},
		{"ALLUPPERCASE1!", ErrPasswordTooWeak},
		{"NoDigitsHere!", ErrPasswordTooWeak},
		{"NoSpecial123", ErrPasswordTooWeak},
		{"Valid#Pass1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := CheckPasswordPolicy(tt.in, 8)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHashAndCompare(t *testing.T) {
	hash, err := HashPassword("Valid#Pass1", &BcryptConfig{Cost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.NotEqual(t, "Valid#Pass1", hash)

	assert.NoError(t, ComparePassword(hash, "Valid#Pass1"))
	assert.Error(t, ComparePassword(hash, "Valid#Pass2"))

	_, err = HashPassword("weak", &BcryptConfig{Cost: bcrypt.MinCost})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
