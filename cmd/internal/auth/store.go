package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// User store errors.
var (
	ErrUserNotFound = errors.New("auth: user not found")
	ErrEmailTaken   = errors.New("auth: email already registered")
)

// User is a registered participant.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}

// CreateUserInput describes a registration.
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	AvatarURL    string
	Now          time.Time
}

// UserStore persists and queries users.
type UserStore interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	Close() error
}

// MemoryUserStore is a dev-only fallback when no database is configured.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // lowercased email -> user id
}

// NewMemoryUserStore constructs an in-memory UserStore implementation.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryUserStore) Close() error { return nil }

// CreateUser registers a user, enforcing email uniqueness.
func (s *MemoryUserStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email := normalizeEmail(in.Email)
	if email == "" || in.Username == "" || in.PasswordHash == "" {
		return User{}, errors.New("invalid input")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return User{}, ErrEmailTaken
	}

	u := User{
		ID:           newUserID(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		AvatarURL:    in.AvatarURL,
		CreatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

// UserByEmail looks a user up by email (case-insensitive).
func (s *MemoryUserStore) UserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

// UserByID looks a user up by id.
func (s *MemoryUserStore) UserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newUserID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
