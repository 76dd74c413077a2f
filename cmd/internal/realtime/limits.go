package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Bounded per-connection send queue.
	defaultSendQueueSize = 256
	minSendQueueSize     = 32
)

const (
	// Heartbeat defaults (overridable via gateway config).
	defaultHeartbeatInterval = 25 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second
	maxPingFailures          = 3

	// Per-send timeout for outbound writes.
	defaultWriteTimeout = 5 * time.Second

	// Per-connection inbound rate limit (events per window).
	defaultRateEvents = 120
	defaultRateWindow = 10 * time.Second
)
