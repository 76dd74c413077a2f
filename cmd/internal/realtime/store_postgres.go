package realtime

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMessageStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - The store does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresMessageStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the Postgres-backed stores.
type PostgresOption func(*string) error

// WithSchema sets the DB schema used by the store (default: "chat").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(dst *string) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("realtime: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("realtime: invalid schema identifier")
		}
		*dst = schema
		return nil
	}
}

// NewPostgresMessageStore constructs a Postgres-backed MessageStore.
func NewPostgresMessageStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresMessageStore, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	st := &PostgresMessageStore{pool: pool, schema: "chat"}
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
func (s *PostgresMessageStore) Close() error { return nil }

// StoreMessage inserts a message row with a fresh ULID id.
func (s *PostgresMessageStore) StoreMessage(ctx context.Context, in StoreMessageInput) (StoredMessage, error) {
	if s == nil || s.pool == nil {
		return StoredMessage{}, errors.New("realtime: nil store")
	}
	if in.SenderID == "" || strings.TrimSpace(in.Content) == "" {
		return StoredMessage{}, errors.New("invalid input")
	}
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	msg := StoredMessage{
		ID:          NewMessageID(now),
		ChannelID:   in.ChannelID,
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Content:     in.Content,
		CreatedAt:   now,
	}

	messages := pgIdent(s.schema, "messages")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, channel_id, sender_id, recipient_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return StoredMessage{}, err
	}
	return msg, nil
}

// ListChannelMessages returns up to limit most recent channel messages, oldest first.
func (s *PostgresMessageStore) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]StoredMessage, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("realtime: nil store")
	}
	if channelID == "" {
		return nil, errors.New("missing channel id")
	}
	if limit <= 0 {
		limit = 50
	}

	messages := pgIdent(s.schema, "messages")
	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_id, sender_id, recipient_id, content, created_at
		   FROM (SELECT * FROM `+messages+`
		          WHERE channel_id = $1
		          ORDER BY id DESC
		          LIMIT $2) sub
		  ORDER BY id ASC`,
		channelID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]StoredMessage, 0, limit)
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage returns a stored message by id.
func (s *PostgresMessageStore) GetMessage(ctx context.Context, id string) (StoredMessage, error) {
	if s == nil || s.pool == nil {
		return StoredMessage{}, errors.New("realtime: nil store")
	}

	messages := pgIdent(s.schema, "messages")
	var m StoredMessage
	err := s.pool.QueryRow(ctx,
		`SELECT id, channel_id, sender_id, recipient_id, content, created_at
		   FROM `+messages+` WHERE id = $1`, id,
	).Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredMessage{}, ErrMessageNotFound
	}
	if err != nil {
		return StoredMessage{}, err
	}
	return m, nil
}

// DeleteMessage removes a stored message by id.
func (s *PostgresMessageStore) DeleteMessage(ctx context.Context, id string) error {
	if s == nil || s.pool == nil {
		return errors.New("realtime: nil store")
	}

	messages := pgIdent(s.schema, "messages")
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+messages+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// PostgresChannelStore is a ChannelStore backed by PostgreSQL.
// Channels are open: any authenticated identity may attach to an existing one.
type PostgresChannelStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresChannelStore constructs a Postgres-backed ChannelStore.
func NewPostgresChannelStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresChannelStore, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	st := &PostgresChannelStore{pool: pool, schema: "chat"}
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

// ChannelExists reports whether a channel row exists.
func (s *PostgresChannelStore) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if channelID == "" {
		return false, nil
	}
	channels := pgIdent(s.schema, "channels")

	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM `+channels+` WHERE id = $1`, channelID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CanAttach allows any authenticated identity into an existing channel, and
// an identity into its own direct-message inbox only.
func (s *PostgresChannelStore) CanAttach(ctx context.Context, identity string, dst Destination) (bool, error) {
	if identity == "" {
		return false, nil
	}
	if dst.IsChannel() {
		return s.ChannelExists(ctx, dst.ID)
	}
	return dst.ID == identity, nil
}

// ListChannels returns all channels ordered by creation.
func (s *PostgresChannelStore) ListChannels(ctx context.Context) ([]Channel, error) {
	channels := pgIdent(s.schema, "channels")
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, owner_id, created_at FROM `+channels+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChannel returns a channel by id.
func (s *PostgresChannelStore) GetChannel(ctx context.Context, id string) (Channel, error) {
	channels := pgIdent(s.schema, "channels")

	var c Channel
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM `+channels+` WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	return c, nil
}

// CreateChannel inserts a channel row owned by ownerID.
func (s *PostgresChannelStore) CreateChannel(ctx context.Context, name, ownerID string, now time.Time) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, errors.New("missing channel name")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	c := Channel{ID: NewChannelID(now), Name: name, OwnerID: ownerID, CreatedAt: now}

	channels := pgIdent(s.schema, "channels")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+channels+` (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.OwnerID, c.CreatedAt,
	); err != nil {
		return Channel{}, err
	}
	return c, nil
}

// UpdateChannel renames a channel.
func (s *PostgresChannelStore) UpdateChannel(ctx context.Context, id, name string) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, errors.New("missing channel name")
	}

	channels := pgIdent(s.schema, "channels")
	var c Channel
	err := s.pool.QueryRow(ctx,
		`UPDATE `+channels+` SET name = $2 WHERE id = $1
		 RETURNING id, name, owner_id, created_at`, id, name,
	).Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return Channel{}, err
	}
	return c, nil
}

// DeleteChannel removes a channel and, via the FK cascade, its messages.
func (s *PostgresChannelStore) DeleteChannel(ctx context.Context, id string) error {
	channels := pgIdent(s.schema, "channels")
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+channels+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
