package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// GatewayConfig carries the gateway tunables. Zero values fall back to the
// limits.go defaults.
type GatewayConfig struct {
	// Origin policy. Origin is required by default and only localhost is
	// allowed, secure-by-default for dev.
	OriginRequired bool
	AllowedOrigins []string

	SendQueueSize     int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RateEvents        int
	RateWindow        time.Duration
}

// GatewayDeps bundles the collaborators shared by all sessions.
type GatewayDeps struct {
	Registry *Registry
	Router   *Router
	Verifier IdentityVerifier
	Channels ChannelDirectory
	Store    MessageStore
	Metrics  *Metrics
}

// Gateway is the WebSocket entrypoint. It enforces origin policy, upgrades
// the connection, and hands the transport to a Session.
type Gateway struct {
	log  *slog.Logger
	deps GatewayDeps
	cfg  GatewayConfig

	// Derived for websocket.Accept origin checks: Accept authorizes same-host
	// origins by default, cross-origin requires OriginPatterns.
	originPatterns []string
}

// NewGateway constructs a gateway.
func NewGateway(log *slog.Logger, deps GatewayDeps, cfg GatewayConfig) *Gateway {
	if cfg.SendQueueSize > 0 && cfg.SendQueueSize < minSendQueueSize {
		cfg.SendQueueSize = minSendQueueSize
	}
	return &Gateway{
		log:            log,
		deps:           deps,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// HandleChannel serves GET /ws/channels/{channel}.
func (g *Gateway) HandleChannel(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, chi.URLParam(r, "channel"), false)
}

// HandleDirect serves GET /ws/direct.
func (g *Gateway) HandleDirect(w http.ResponseWriter, r *http.Request) {
	g.handle(w, r, "", true)
}

func (g *Gateway) handle(w http.ResponseWriter, r *http.Request, channelID string, direct bool) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	// The token is carried as a query parameter; headers are not available to
	// browser WebSocket clients.
	token := r.URL.Query().Get("token")

	sess := NewSession(SessionParams{
		Log:      g.log,
		Registry: g.deps.Registry,
		Router:   g.deps.Router,
		Verifier: g.deps.Verifier,
		Channels: g.deps.Channels,
		Store:    g.deps.Store,
		Metrics:  g.deps.Metrics,

		Transport: newWSTransport(conn, g.cfg.WriteTimeout),
		Token:     token,
		ChannelID: channelID,
		Direct:    direct,

		SendQueueSize:     g.cfg.SendQueueSize,
		HeartbeatInterval: g.cfg.HeartbeatInterval,
		HeartbeatTimeout:  g.cfg.HeartbeatTimeout,
		RateEvents:        g.cfg.RateEvents,
		RateWindow:        g.cfg.RateWindow,
	})
	sess.Run(r.Context())
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns keeps websocket.Accept's origin policy in agreement
// with the gateway allowlist: only hosts extracted from it are accepted.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			// A wildcard allowlist must reach Accept too, or it would
			// reject the cross-origin requests enforceOrigin waves through.
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}
