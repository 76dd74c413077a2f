package v1

import (
	"encoding/json"
	"time"
)

// Kind constants (wire-stable).
const (
	// KindMessage is a chat message (client -> server and server -> recipients).
	KindMessage = "message"
	// KindTyping is a typing indicator (client -> server and server -> recipients).
	KindTyping = "typing"
	// KindPresenceJoined announces a participant joining a channel (server -> channel).
	KindPresenceJoined = "presence-joined"
	// KindPresenceLeft announces a participant leaving a channel (server -> channel).
	KindPresenceLeft = "presence-left"
	// KindError reports a recoverable failure to the offending client only (server -> client).
	KindError = "error"
)

// Event is the canonical wire wrapper: a kind tag plus kind-specific data.
// Events are immutable after construction.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ---- Outbound payloads ----

// MessageData is the data of an outbound message event.
// Exactly one of ChannelID/RecipientID is set, depending on the destination kind.
type MessageData struct {
	ID          string    `json:"id"`
	ChannelID   *string   `json:"channelId"`
	SenderID    string    `json:"senderId"`
	RecipientID *string   `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Username    string    `json:"username"`
	AvatarURL   *string   `json:"avatarUrl"`
}

// TypingData is the data of an outbound typing event.
type TypingData struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	ChannelID   *string `json:"channelId"`
	RecipientID *string `json:"recipientId"`
	IsTyping    bool    `json:"is_typing"`
}

// PresenceData is the data of a presence-joined / presence-left event.
// Presence events are broadcast for channel destinations only.
type PresenceData struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	ChannelID string    `json:"channelId"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorData carries a stable machine code and a human-readable reason.
// It never exposes internal failure detail.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage wraps MessageData into an event.
func NewMessage(d MessageData) Event { return newEvent(KindMessage, d) }

// NewTyping wraps TypingData into an event.
func NewTyping(d TypingData) Event { return newEvent(KindTyping, d) }

// NewPresence wraps PresenceData into a presence event of the given kind
// (KindPresenceJoined or KindPresenceLeft).
func NewPresence(kind string, d PresenceData) Event { return newEvent(kind, d) }

// NewError builds an error event.
func NewError(code, message string) Event {
	return newEvent(KindError, ErrorData{Code: code, Message: message})
}

func newEvent(kind string, data any) Event {
	// Marshaling these payload structs cannot fail.
	raw, _ := json.Marshal(data)
	return Event{Type: kind, Data: raw}
}
