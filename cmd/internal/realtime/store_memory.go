package realtime

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

const memMaxMessagesPerDestination = 10_000

// MemoryMessageStore is a dev-only fallback when no database is configured.
type MemoryMessageStore struct {
	mu       sync.Mutex
	channels map[string][]StoredMessage
	direct   []StoredMessage
}

// NewMemoryMessageStore constructs an in-memory MessageStore implementation.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		channels: make(map[string][]StoredMessage),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryMessageStore) Close() error { return nil }

// StoreMessage records a message in memory with a fresh ULID and UTC timestamp.
func (s *MemoryMessageStore) StoreMessage(ctx context.Context, in StoreMessageInput) (StoredMessage, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ChannelID != nil {
		key := *in.ChannelID
		msgs := append(s.channels[key], msg)
		// Bound memory to avoid unbounded growth in dev.
		if len(msgs) > memMaxMessagesPerDestination {
			msgs = msgs[len(msgs)-memMaxMessagesPerDestination:]
		}
		s.channels[key] = msgs
	} else {
		s.direct = append(s.direct, msg)
		if len(s.direct) > memMaxMessagesPerDestination {
			s.direct = s.direct[len(s.direct)-memMaxMessagesPerDestination:]
		}
	}

	return msg, nil
}

// ListChannelMessages returns up to limit most recent messages, oldest first.
func (s *MemoryMessageStore) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]StoredMessage, error) {
	if channelID == "" {
		return nil, errors.New("missing channel id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	snap := append([]StoredMessage(nil), s.channels[channelID]...)
	s.mu.Unlock()

	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })
	if len(snap) > limit {
		snap = snap[len(snap)-limit:]
	}
	return snap, nil
}

// GetMessage returns a stored message by id.
func (s *MemoryMessageStore) GetMessage(ctx context.Context, id string) (StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msgs := range s.channels {
		for _, m := range msgs {
			if m.ID == id {
				return m, nil
			}
		}
	}
	for _, m := range s.direct {
		if m.ID == id {
			return m, nil
		}
	}
	return StoredMessage{}, ErrMessageNotFound
}

// DeleteMessage removes a stored message by id.
func (s *MemoryMessageStore) DeleteMessage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, msgs := range s.channels {
		for i, m := range msgs {
			if m.ID == id {
				s.channels[key] = append(msgs[:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	for i, m := range s.direct {
		if m.ID == id {
			s.direct = append(s.direct[:i], s.direct[i+1:]...)
			return nil
		}
	}
	return ErrMessageNotFound
}

// MemoryChannelStore is an in-memory ChannelStore for dev and tests.
type MemoryChannelStore struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewMemoryChannelStore constructs a channel store, optionally pre-seeded
// with named channels (dev convenience).
func NewMemoryChannelStore(seed ...string) *MemoryChannelStore {
	s := &MemoryChannelStore{channels: make(map[string]Channel)}
	now := time.Now().UTC()
	for _, name := range seed {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := NewChannelID(now)
		s.channels[id] = Channel{ID: id, Name: name, CreatedAt: now}
	}
	return s
}

// ChannelExists reports whether a channel id is known.
func (s *MemoryChannelStore) ChannelExists(_ context.Context, channelID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channelID]
	return ok, nil
}

// CanAttach allows any authenticated identity into an existing channel, and
// an identity into its own direct-message inbox only.
func (s *MemoryChannelStore) CanAttach(ctx context.Context, identity string, dst Destination) (bool, error) {
	if identity == "" {
		return false, nil
	}
	if dst.IsChannel() {
		return s.ChannelExists(ctx, dst.ID)
	}
	return dst.ID == identity, nil
}

// ListChannels returns all channels ordered by creation.
func (s *MemoryChannelStore) ListChannels(_ context.Context) ([]Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetChannel returns a channel by id.
func (s *MemoryChannelStore) GetChannel(_ context.Context, id string) (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[id]
	if !ok {
		return Channel{}, ErrChannelNotFound
	}
	return c, nil
}

// CreateChannel registers a new channel owned by ownerID.
func (s *MemoryChannelStore) CreateChannel(_ context.Context, name, ownerID string, now time.Time) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, errors.New("missing channel name")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	c := Channel{ID: NewChannelID(now), Name: name, OwnerID: ownerID, CreatedAt: now}

	s.mu.Lock()
	s.channels[c.ID] = c
	s.mu.Unlock()
	return c, nil
}

// UpdateChannel renames a channel.
func (s *MemoryChannelStore) UpdateChannel(_ context.Context, id, name string) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, errors.New("missing channel name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[id]
	if !ok {
		return Channel{}, ErrChannelNotFound
	}
	c.Name = name
	s.channels[id] = c
	return c, nil
}

// DeleteChannel removes a channel.
func (s *MemoryChannelStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; !ok {
		return ErrChannelNotFound
	}
	delete(s.channels, id)
	return nil
}
