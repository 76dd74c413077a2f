// Package auth implements Beacon's identity collaborators: credential tokens,
// password hashing, and the user store.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"beacon/cmd/internal/realtime"

	"github.com/golang-jwt/jwt/v5"
)

const minTokenSecretBytes = 32

// Token errors surfaced to callers.
var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrSecretTooShort = errors.New("auth: token secret too short")
)

// Claims is the data carried inside a Beacon credential token.
type Claims struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 credential tokens.
// It implements realtime.IdentityVerifier.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenService constructs a TokenService. The secret must be at least 32 bytes.
func NewTokenService(secret []byte, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minTokenSecretBytes {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: secret, ttl: ttl, issuer: "beacon"}, nil
}

// Issue creates a signed token for a user.
func (s *TokenService) Issue(user User, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	claims := &Claims{
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the signature and expiration of a credential token and
// returns the verified identity.
func (s *TokenService) Verify(_ context.Context, tokenString string) (realtime.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return realtime.Identity{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return realtime.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return realtime.Identity{}, ErrInvalidToken
	}

	return realtime.Identity{
		ID:        claims.Subject,
		Username:  claims.Username,
		AvatarURL: claims.AvatarURL,
	}, nil
}
