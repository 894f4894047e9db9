package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"github.com/cwrk-planet/chat-relay/internal/domain"
)

// JWTSigner issues and verifies access tokens. The algorithm is pinned at
// construction: HS256 with a shared secret or RS256 with a key pair.
type JWTSigner struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

type SignerOption func(*JWTSigner)

func WithClock(now func() time.Time) SignerOption {
	return func(s *JWTSigner) { s.now = now }
}

func NewHMACSigner(secret []byte, issuer, audience string, ttl, clockSkew time.Duration, opts ...SignerOption) *JWTSigner {
	return newSigner(jwt.SigningMethodHS256, secret, secret, issuer, audience, ttl, clockSkew, opts)
}

func NewRSASigner(private *rsa.PrivateKey, public *rsa.PublicKey, issuer, audience string, ttl, clockSkew time.Duration, opts ...SignerOption) *JWTSigner {
	return newSigner(jwt.SigningMethodRS256, private, public, issuer, audience, ttl, clockSkew, opts)
}

func newSigner(m jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, ttl, skew time.Duration, opts []SignerOption) *JWTSigner {
	s := &JWTSigner{
		method:    m,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		clockSkew: skew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *JWTSigner) TTL() time.Duration {
	return s.ttl
}

type AccessClaims struct {
	Username           string `json:"username"`
	jwt.StandardClaims        // Issuer, Audience, ExpiresAt, NotBefore, IssuedAt, Subject, Id
}

// Valid is a no-op: time claims are checked by ParseAndValidate with clock skew.
func (AccessClaims) Valid() error { return nil }

func (c *AccessClaims) Identity() domain.Identity {
	return domain.Identity{UserID: c.Subject, Username: c.Username}
}

func (c *AccessClaims) ExpiresAtTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// SignAccessToken выпускает JWT с sub=userID, username и exp=now+ttl
func (s *JWTSigner) SignAccessToken(id domain.Identity, now time.Time) (string, *AccessClaims, error) {
	if id.UserID == "" {
		return "", nil, ErrInvalidSubject
	}
	claims := &AccessClaims{
		Username: id.Username,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.signKey)
	if err != nil {
		return "", nil, err
	}

	return signed, claims, nil
}

func (s *JWTSigner) ParseAndValidate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, ErrInvalidToken
		}
		return s.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if !claims.VerifyAudience(s.audience, true) {
		return nil, ErrInvalidAudience
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSubject
	}

	// exp обязателен, nbf опционален; оба с допуском clockSkew
	now := s.now()
	if claims.ExpiresAt == 0 {
		return nil, ErrTokenExpired
	}
	exp := time.Unix(claims.ExpiresAt, 0).Add(s.clockSkew)
	if now.After(exp) {
		return nil, ErrTokenExpired
	}
	if claims.NotBefore != 0 {
		nbf := time.Unix(claims.NotBefore, 0).Add(-s.clockSkew)
		if now.Before(nbf) {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}

func LoadRSAPrivateKeyFromPEM(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not RSA private key")
	}

	return pk, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return jwt.ParseRSAPublicKeyFromPEM(b)
}
