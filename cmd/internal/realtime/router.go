package realtime

import (
	"log/slog"

	v1 "beacon/contracts/chat/v1"
)

// Router performs best-effort fanout of events to live connections.
//
// The router's job is delivery only, never lifecycle management: a failed send
// to one recipient is logged and counted, does not abort delivery to the rest,
// and does not detach anything (detach is owned by the session reacting to its
// own receive-loop termination).
type Router struct {
	log      *slog.Logger
	registry *Registry
	metrics  *Metrics
}

// NewRouter constructs a Router over the given registry.
func NewRouter(log *slog.Logger, registry *Registry, metrics *Metrics) *Router {
	return &Router{log: log, registry: registry, metrics: metrics}
}

// DeliverToDestination fans an event out to every live member of a destination.
// Sends are non-blocking enqueues; a full queue or closed handle is a delivery
// failure for that recipient only.
func (r *Router) DeliverToDestination(ev v1.Event, dst Destination) {
	for _, m := range r.registry.LiveHandlesFor(dst) {
		r.send(ev, m.Identity, m.Conn)
	}
}

// DeliverToIdentities delivers an event to each identity's most recent global
// connection. The set is deduplicated; identities with no live handle are
// silently skipped (offline delivery is not supported).
func (r *Router) DeliverToIdentities(ev v1.Event, identities []string) {
	seen := make(map[string]struct{}, len(identities))
	for _, identity := range identities {
		if identity == "" {
			continue
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		conn, ok := r.registry.LiveHandleFor(identity)
		if !ok {
			r.log.Debug("router.deliver.offline", "identity", identity, "kind", ev.Type)
			continue
		}
		r.send(ev, identity, conn)
	}
}

func (r *Router) send(ev v1.Event, identity string, conn *Conn) {
	if conn.TrySend(ev) {
		r.metrics.EventsDelivered.WithLabelValues(ev.Type).Inc()
		return
	}
	r.metrics.DeliveryFailures.Inc()
	r.log.Info("router.deliver.drop", "identity", identity, "conn_id", conn.ID, "kind", ev.Type)
}
