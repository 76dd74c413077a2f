package v1

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolError reports a malformed or invalid inbound payload.
// It is recoverable: the server replies with an error event and keeps the
// connection open.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// InboundMessage is the client payload of a message event.
type InboundMessage struct {
	Content   string `json:"content"`
	Recipient string `json:"recipient,omitempty"`
}

// InboundTyping is the client payload of a typing event.
// IsTyping is a pointer so a missing field is distinguishable from false.
type InboundTyping struct {
	IsTyping  *bool  `json:"is_typing"`
	Recipient string `json:"recipient,omitempty"`
}

// Inbound is a decoded, validated client event.
// Exactly the field matching Kind is populated.
type Inbound struct {
	Kind    string
	Message InboundMessage
	Typing  InboundTyping
}

// MaxContentChars bounds the rune length of a message content.
const MaxContentChars = 4000

// DecodeInbound parses and validates a raw client payload.
//
// direct indicates the connection is attached to a direct-message destination,
// which makes the recipient field mandatory for both kinds. All failures are
// *ProtocolError values.
func DecodeInbound(raw []byte, direct bool) (Inbound, error) {
	var env Event
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, protocolErrorf("invalid JSON")
	}

	switch env.Type {
	case KindMessage:
		var m InboundMessage
		if err := unmarshalData(env.Data, &m); err != nil {
			return Inbound{}, err
		}
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			return Inbound{}, protocolErrorf("missing field: content")
		}
		if len([]rune(m.Content)) > MaxContentChars {
			return Inbound{}, protocolErrorf("content too long: max=%d chars", MaxContentChars)
		}
		m.Recipient = strings.TrimSpace(m.Recipient)
		if direct && m.Recipient == "" {
			return Inbound{}, protocolErrorf("missing field: recipient")
		}
		return Inbound{Kind: KindMessage, Message: m}, nil

	case KindTyping:
		var t InboundTyping
		if err := unmarshalData(env.Data, &t); err != nil {
			return Inbound{}, err
		}
		if t.IsTyping == nil {
			return Inbound{}, protocolErrorf("missing field: is_typing")
		}
		t.Recipient = strings.TrimSpace(t.Recipient)
		if direct && t.Recipient == "" {
			return Inbound{}, protocolErrorf("missing field: recipient")
		}
		return Inbound{Kind: KindTyping, Typing: t}, nil

	case "":
		return Inbound{}, protocolErrorf("missing field: type")
	default:
		return Inbound{}, protocolErrorf("unsupported type: %q", env.Type)
	}
}

func unmarshalData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return protocolErrorf("missing field: data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return protocolErrorf("malformed data")
	}
	return nil
}
