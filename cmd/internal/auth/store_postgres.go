package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserStore is a UserStore backed by PostgreSQL.
// The pool is owned by the caller; Close is a no-op.
type PostgresUserStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures the Postgres-backed user store.
type StoreOption func(*string) error

// WithSchema sets the DB schema used by the store (default: "chat").
func WithSchema(schema string) StoreOption {
	return func(dst *string) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("auth: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return errors.New("auth: invalid schema identifier")
		}
		*dst = schema
		return nil
	}
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresUserStore constructs a Postgres-backed UserStore.
func NewPostgresUserStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresUserStore, error) {
	if pool == nil {
		return nil, errors.New("auth: nil pool")
	}
	st := &PostgresUserStore{pool: pool, schema: "chat"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&st.schema); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresUserStore) Close() error { return nil }

func (s *PostgresUserStore) usersTable() string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

// CreateUser inserts a user row; a unique-violation on email maps to ErrEmailTaken.
func (s *PostgresUserStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Username == "" || in.PasswordHash == "" {
		return User{}, errors.New("invalid input")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:           newUserID(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		AvatarURL:    in.AvatarURL,
		CreatedAt:    now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.usersTable()+` (id, email, username, password_hash, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.AvatarURL, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

// UserByEmail looks a user up by email (case-insensitive).
func (s *PostgresUserStore) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryOne(ctx,
		`SELECT id, email, username, password_hash, avatar_url, created_at
		   FROM `+s.usersTable()+` WHERE email = $1`, normalizeEmail(email))
}

// UserByID looks a user up by id.
func (s *PostgresUserStore) UserByID(ctx context.Context, id string) (User, error) {
	return s.queryOne(ctx,
		`SELECT id, email, username, password_hash, avatar_url, created_at
		   FROM `+s.usersTable()+` WHERE id = $1`, id)
}

func (s *PostgresUserStore) queryOne(ctx context.Context, q string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.AvatarURL, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
