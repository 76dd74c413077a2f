package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	v1 "beacon/contracts/chat/v1"
)

// SessionState is the lifecycle state of one connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateAttaching
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAttaching:
		return "attaching"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is the opaque verified-identity assertion produced by the
// identity-verification collaborator. Immutable for the connection's lifetime.
type Identity struct {
	ID        string
	Username  string
	AvatarURL string
}

// IdentityVerifier validates a credential token.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// SessionParams wires one session's collaborators and tunables.
type SessionParams struct {
	Log      *slog.Logger
	Registry *Registry
	Router   *Router
	Verifier IdentityVerifier
	Channels ChannelDirectory
	Store    MessageStore
	Metrics  *Metrics

	Transport Transport
	Token     string

	// ChannelID is set for channel connections; Direct for DM connections.
	ChannelID string
	Direct    bool

	SendQueueSize     int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RateEvents        int
	RateWindow        time.Duration
}

// Session orchestrates a single connection's life: authenticate, attach,
// receive loop, detach. It owns its Transport exclusively until teardown.
type Session struct {
	p SessionParams

	state    atomic.Int32
	identity Identity
	dst      Destination
	conn     *Conn

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSession constructs a session in the Connecting state.
func NewSession(p SessionParams) *Session {
	s := &Session{p: p}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Identity returns the verified identity (zero before authentication).
func (s *Session) Identity() Identity { return s.identity }

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
	s.p.Log.Debug("session.state", "state", st.String())
}

// Run drives the session to completion. It returns after teardown, with the
// state machine at Closed.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	// Authenticating: a failure here is fatal before any registry state exists.
	s.setState(StateAuthenticating)
	identity, err := s.authenticate(ctx)
	if err != nil {
		s.p.Log.Info("session.auth.reject", "err", err)
		_ = s.p.Transport.Close(ClosePolicyViolation, "authentication required")
		s.setState(StateClosed)
		return
	}
	s.identity = identity

	// Attaching: resolve the destination and register the handle.
	s.setState(StateAttaching)
	dst, code, err := s.resolveDestination(ctx)
	if err != nil {
		s.p.Log.Info("session.attach.reject", "identity", identity.ID, "err", err)
		_ = s.p.Transport.Close(code, err.Error())
		s.setState(StateClosed)
		return
	}
	s.dst = dst

	s.conn = NewConn(identity.ID, s.p.SendQueueSize)
	s.p.Registry.Attach(dst, identity.ID, s.conn, PresenceInfo{
		Username:  identity.Username,
		AvatarURL: identity.AvatarURL,
	})
	s.p.Metrics.ConnectionsActive.Inc()

	writerDone := s.startWriter(ctx)
	heartbeatDone := s.startHeartbeat(ctx)

	if s.dst.IsChannel() {
		s.p.Router.DeliverToDestination(s.presenceEvent(v1.KindPresenceJoined), s.dst)
	}

	s.setState(StateActive)
	s.receiveLoop(ctx)

	s.shutdown(CloseNormal, "bye")
	<-writerDone
	if heartbeatDone != nil {
		<-heartbeatDone
	}
}

func (s *Session) authenticate(ctx context.Context) (Identity, error) {
	if s.p.Token == "" {
		return Identity{}, errors.New("missing credential token")
	}
	return s.p.Verifier.Verify(ctx, s.p.Token)
}

func (s *Session) resolveDestination(ctx context.Context) (Destination, CloseCode, error) {
	var dst Destination
	if s.p.Direct {
		dst = InboxDestination(s.identity.ID)
	} else {
		dst = ChannelDestination(s.p.ChannelID)
		exists, err := s.p.Channels.ChannelExists(ctx, s.p.ChannelID)
		if err != nil {
			return Destination{}, CloseInternalError, errors.New("channel lookup failed")
		}
		if !exists {
			return Destination{}, CloseUnsupportedData, errors.New("channel not found")
		}
	}

	ok, err := s.p.Channels.CanAttach(ctx, s.identity.ID, dst)
	if err != nil {
		return Destination{}, CloseInternalError, errors.New("authorization failed")
	}
	if !ok {
		return Destination{}, ClosePolicyViolation, errors.New("not allowed")
	}
	return dst, 0, nil
}

// receiveLoop runs the Active state: one inbound payload at a time.
// Protocol and storage errors are recoverable and reported to the sender
// only; transport errors terminate the loop.
func (s *Session) receiveLoop(ctx context.Context) {
	limiter := NewRateLimiter(s.p.RateEvents, s.p.RateWindow)

	for {
		raw, err := s.p.Transport.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrDisconnected):
				s.shutdown(CloseNormal, "peer closed")
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				s.shutdown(CloseGoingAway, "context done")
			default:
				s.p.Log.Info("session.read.fail", "identity", s.identity.ID, "err", err)
				s.shutdown(CloseInternalError, "read failed")
			}
			return
		}

		now := time.Now().UTC()
		if !limiter.Allow(now) {
			// Written directly so the error reaches the peer before the
			// transport is torn down; the queued writer would lose the race
			// against shutdown.
			sendCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			_ = s.p.Transport.Send(sendCtx, v1.NewError("rate_limited", "too many events"))
			cancel()
			s.shutdown(ClosePolicyViolation, "rate limited")
			return
		}

		in, err := v1.DecodeInbound(raw, s.p.Direct)
		if err != nil {
			// Reported to the offending connection only; the connection is
			// NOT closed for a protocol error alone.
			s.sendError("bad_event", err.Error())
			continue
		}

		switch in.Kind {
		case v1.KindMessage:
			s.handleMessage(ctx, in.Message, now)
		case v1.KindTyping:
			s.handleTyping(in.Typing)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, in v1.InboundMessage, now time.Time) {
	input := StoreMessageInput{
		SenderID: s.identity.ID,
		Content:  in.Content,
		Now:      now,
	}
	if s.dst.IsChannel() {
		channelID := s.dst.ID
		input.ChannelID = &channelID
	} else {
		recipient := in.Recipient
		input.RecipientID = &recipient
	}

	stored, err := s.p.Store.StoreMessage(ctx, input)
	if err != nil {
		// Recoverable: reported to the sender only, loop continues.
		s.p.Log.Error("session.store.fail", "identity", s.identity.ID, "err", err)
		s.sendError("storage_failed", "failed to store message")
		return
	}
	s.p.Metrics.MessagesStored.Inc()

	data := v1.MessageData{
		ID:          stored.ID,
		ChannelID:   stored.ChannelID,
		SenderID:    s.identity.ID,
		RecipientID: stored.RecipientID,
		Content:     stored.Content,
		Timestamp:   stored.CreatedAt,
		Username:    s.identity.Username,
		AvatarURL:   optional(s.identity.AvatarURL),
	}
	ev := v1.NewMessage(data)

	if s.dst.IsChannel() {
		s.p.Router.DeliverToDestination(ev, s.dst)
		return
	}
	s.p.Router.DeliverToIdentities(ev, []string{s.identity.ID, in.Recipient})
}

func (s *Session) handleTyping(in v1.InboundTyping) {
	data := v1.TypingData{
		UserID:   s.identity.ID,
		Username: s.identity.Username,
		IsTyping: *in.IsTyping,
	}
	if s.dst.IsChannel() {
		channelID := s.dst.ID
		data.ChannelID = &channelID
		s.p.Router.DeliverToDestination(v1.NewTyping(data), s.dst)
		return
	}
	recipient := in.Recipient
	data.RecipientID = &recipient
	s.p.Router.DeliverToIdentities(v1.NewTyping(data), []string{s.identity.ID, in.Recipient})
}

// sendError reports a recoverable failure to this connection only.
func (s *Session) sendError(code, message string) {
	if s.conn == nil {
		return
	}
	if !s.conn.TrySend(v1.NewError(code, message)) {
		s.p.Log.Info("session.error.drop", "identity", s.identity.ID, "code", code)
	}
}

func (s *Session) presenceEvent(kind string) v1.Event {
	return v1.NewPresence(kind, v1.PresenceData{
		UserID:    s.identity.ID,
		Username:  s.identity.Username,
		ChannelID: s.dst.ID,
		Timestamp: time.Now().UTC(),
	})
}

// shutdown tears the session down exactly once. Safe to invoke from the read
// loop, the writer, and the heartbeat racing each other; the registry's
// equality-guarded detach makes double invocation harmless. Broadcast
// failures during teardown are swallowed by the router.
func (s *Session) shutdown(code CloseCode, reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)

		if s.conn != nil {
			s.p.Registry.Detach(s.dst, s.identity.ID, s.conn)
			s.conn.Close()
			s.p.Metrics.ConnectionsActive.Dec()

			if s.dst.IsChannel() {
				s.p.Router.DeliverToDestination(s.presenceEvent(v1.KindPresenceLeft), s.dst)
			}
		}

		_ = s.p.Transport.Close(code, reason)
		if s.cancel != nil {
			s.cancel()
		}
		s.setState(StateClosed)
		s.p.Log.Info("session.closed", "identity", s.identity.ID, "destination", s.dst.String(), "reason", reason)
	})
}

// startWriter drains the connection queue onto the transport. All outbound
// traffic funnels through here, which yields per-connection send order.
func (s *Session) startWriter(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.conn.Done():
				return
			case ev := <-s.conn.Send:
				if err := s.p.Transport.Send(ctx, ev); err != nil {
					s.p.Log.Info("session.write.fail", "identity", s.identity.ID, "err", err)
					s.shutdown(CloseInternalError, "write failed")
					return
				}
			}
		}
	}()
	return done
}

func (s *Session) startHeartbeat(ctx context.Context) <-chan struct{} {
	if s.p.HeartbeatInterval <= 0 {
		return nil
	}
	timeout := s.p.HeartbeatTimeout
	if timeout <= 0 {
		timeout = defaultHeartbeatTimeout
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		t := time.NewTicker(s.p.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.conn.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, timeout)
				err := s.p.Transport.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					s.p.Log.Info("session.ping.fail", "identity", s.identity.ID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						s.shutdown(CloseGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()
	return done
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
