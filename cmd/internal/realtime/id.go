package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a ULID used as stored-message id.
// ULIDs are lexicographically sortable, which keeps history queries cheap.
func NewMessageID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// NewChannelID returns a ULID used as channel id.
func NewChannelID(now time.Time) string {
	return NewMessageID(now)
}

// NewConnID returns a random hex connection id for logs and detach guards.
func NewConnID() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		// Callers treat empty as an error-like condition in logs.
		return ""
	}
	return hex.EncodeToString(b)
}
