package realtime

import (
	"context"
	"errors"
	"time"
)

// Store lookup errors.
var (
	ErrChannelNotFound = errors.New("realtime: channel not found")
	ErrMessageNotFound = errors.New("realtime: message not found")
)

// StoredMessage is the durable form of a message event. Only its id and
// timestamp echo back into the broadcast event.
type StoredMessage struct {
	ID          string
	ChannelID   *string
	SenderID    string
	RecipientID *string
	Content     string
	CreatedAt   time.Time
}

// StoreMessageInput describes a persist request.
type StoreMessageInput struct {
	ChannelID   *string
	SenderID    string
	RecipientID *string
	Content     string
	Now         time.Time
}

// MessageStore is the persistence collaborator.
type MessageStore interface {
	// StoreMessage durably records a message and returns the stored form.
	StoreMessage(ctx context.Context, in StoreMessageInput) (StoredMessage, error)
	// ListChannelMessages returns up to limit most recent channel messages,
	// oldest first.
	ListChannelMessages(ctx context.Context, channelID string, limit int) ([]StoredMessage, error)
	// GetMessage returns a stored message by id (ErrMessageNotFound when absent).
	GetMessage(ctx context.Context, id string) (StoredMessage, error)
	// DeleteMessage removes a stored message (ErrMessageNotFound when absent).
	DeleteMessage(ctx context.Context, id string) error
	Close() error
}

// Channel is a shared chat channel. OwnerID is empty for seeded channels,
// which therefore cannot be renamed or deleted through the API.
type Channel struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// ChannelDirectory is the destination existence/authorization collaborator.
type ChannelDirectory interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	// CanAttach decides whether an identity may attach to a destination.
	CanAttach(ctx context.Context, identity string, dst Destination) (bool, error)
}

// ChannelStore extends ChannelDirectory with the management surface used by
// the REST API.
type ChannelStore interface {
	ChannelDirectory
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannel(ctx context.Context, id string) (Channel, error)
	CreateChannel(ctx context.Context, name, ownerID string, now time.Time) (Channel, error)
	UpdateChannel(ctx context.Context, id, name string) (Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}
