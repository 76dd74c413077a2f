package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	v1 "beacon/contracts/chat/v1"

	"github.com/coder/websocket"
)

// CloseCode is a transport close status (mirrors RFC 6455 values).
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseUnsupportedData CloseCode = 1003
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

// ErrDisconnected is returned by Receive when the peer closed the connection
// (gracefully or abruptly). Any other Receive error is a transport failure;
// both are fatal to the owning session only.
var ErrDisconnected = errors.New("realtime: peer disconnected")

// Transport is the bidirectional endpoint owned by exactly one session.
type Transport interface {
	// Send writes one event. Bounded by the implementation's write timeout.
	Send(ctx context.Context, ev v1.Event) error
	// Receive blocks for the next inbound payload.
	Receive(ctx context.Context) ([]byte, error)
	// Ping checks peer liveness.
	Ping(ctx context.Context) error
	// Close terminates the transport with a status code and reason. Idempotent
	// at the websocket layer; errors are ignorable during teardown.
	Close(code CloseCode, reason string) error
}

// wsTransport adapts a coder/websocket connection to the Transport contract,
// converting exceptions at the socket boundary into explicit results.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) Send(ctx context.Context, ev v1.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()
	return t.conn.Write(wctx, websocket.MessageText, b)
}

func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	mt, data, err := t.conn.Read(ctx)
	if err != nil {
		if isDisconnect(err) {
			return nil, ErrDisconnected
		}
		return nil, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return nil, fmt.Errorf("unsupported message type: %v", mt)
	}
	return data, nil
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(code CloseCode, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func isDisconnect(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
