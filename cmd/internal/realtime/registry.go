// Package realtime contains Beacon's connection registry, broadcast router,
// session lifecycle and WebSocket gateway.
package realtime

import (
	"log/slog"
	"sync"
)

// PresenceInfo is the display metadata cached for a connected participant.
type PresenceInfo struct {
	Username  string
	AvatarURL string
}

// Member pairs an identity with its live connection handle.
type Member struct {
	Identity string
	Conn     *Conn
}

// Registry tracks which participant is reachable on which live connection,
// per destination and globally.
//
// Concurrency guarantees:
// - Attach/Detach are safe under concurrent snapshot reads.
// - Detach is equality-guarded: a stale detach racing a newer attach is a no-op.
// - No lock is ever held across a network send; reads used for delivery are snapshots.
type Registry struct {
	log *slog.Logger

	mu           sync.RWMutex
	destinations map[Destination]map[string]*Conn
	global       map[string]*Conn
	presence     map[string]PresenceInfo
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:          log,
		destinations: make(map[Destination]map[string]*Conn),
		global:       make(map[string]*Conn),
		presence:     make(map[string]PresenceInfo),
	}
}

// Attach registers conn under the destination and globally. A later attach for
// the same (destination, identity) silently supersedes the earlier entry; the
// superseded session cleans itself up via its own equality-guarded detach.
// Pure bookkeeping: it cannot fail.
func (r *Registry) Attach(dst Destination, identity string, conn *Conn, info PresenceInfo) {
	if conn == nil || identity == "" {
		return
	}

	r.mu.Lock()
	members := r.destinations[dst]
	if members == nil {
		members = make(map[string]*Conn)
		r.destinations[dst] = members
	}
	members[identity] = conn
	r.global[identity] = conn
	r.presence[identity] = info
	r.mu.Unlock()

	r.log.Info("registry.attach", "destination", dst.String(), "identity", identity, "conn_id", conn.ID)
}

// Detach removes the (destination, identity) entry only if it still holds the
// supplied handle, prunes the destination when empty, and removes the global
// mapping under the same guard. A no-op when the entry is absent or belongs to
// a newer connection; safe to invoke from racing teardown paths.
func (r *Registry) Detach(dst Destination, identity string, conn *Conn) {
	if conn == nil || identity == "" {
		return
	}

	r.mu.Lock()
	if members, ok := r.destinations[dst]; ok && members[identity] == conn {
		delete(members, identity)
		if len(members) == 0 {
			delete(r.destinations, dst)
		}
	}
	if r.global[identity] == conn {
		delete(r.global, identity)
		delete(r.presence, identity)
	}
	r.mu.Unlock()

	r.log.Info("registry.detach", "destination", dst.String(), "identity", identity, "conn_id", conn.ID)
}

// LiveHandlesFor returns a snapshot of the live members of a destination.
// Delivery iterates the copy, unaffected by concurrent attach/detach.
func (r *Registry) LiveHandlesFor(dst Destination) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.destinations[dst]
	if len(members) == 0 {
		return nil
	}
	out := make([]Member, 0, len(members))
	for identity, conn := range members {
		out = append(out, Member{Identity: identity, Conn: conn})
	}
	return out
}

// LiveHandleFor returns the most recently attached connection for an identity.
func (r *Registry) LiveHandleFor(identity string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.global[identity]
	return conn, ok
}

// PresenceInfoFor returns the cached display metadata for a connected identity.
func (r *Registry) PresenceInfoFor(identity string) (PresenceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.presence[identity]
	return info, ok
}
