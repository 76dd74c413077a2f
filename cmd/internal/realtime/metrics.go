package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the realtime-layer collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	EventsDelivered   *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	MessagesStored    prometheus.Counter
}

// NewMetrics registers the realtime collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_connections_active",
			Help: "Currently attached realtime connections.",
		}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_delivered_total",
			Help: "Events enqueued for delivery, by kind.",
		}, []string{"kind"}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "beacon_delivery_failures_total",
			Help: "Per-recipient delivery failures (closed handle or full queue).",
		}),
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "beacon_messages_stored_total",
			Help: "Messages durably stored.",
		}),
	}
}
