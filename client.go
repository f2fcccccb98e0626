package duplexrpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"time"

	"github.com/airyai/duplexrpc/channel"
	"github.com/airyai/duplexrpc/code"
)

// A Client is a thin wrapper around a single dialed Session. The protocol is
// symmetric: once connected, the remote peer may call back into this
// process's Assigner exactly as this Client calls into the server's.
type Client struct {
	session *Session
}

// Dial connects to addr over TCP, optionally through TLS, and returns a
// Client wrapping the resulting Session. If tlsConfig is non-nil, a TLS
// handshake is completed over the dialed connection before it is handed to
// the Session.
func Dial(ctx context.Context, network, addr string, tlsConfig *tls.Config, opts *ClientOptions) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		tconn := tls.Client(conn, tlsConfig)
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tconn
	}
	return NewClient(conn, opts), nil
}

// NewClient wraps an already-established connection in a Client. The
// connection is framed with one JSON object per line via channel.Line.
func NewClient(conn net.Conn, opts *ClientOptions) *Client {
	ch := channel.Line(conn, conn)
	assigner := clientAssigner{user: opts.assigner(), disableEcho: opts.disableEcho()}
	s := newSession(conn.RemoteAddr().String(), ch, assigner, opts.sessionOptions()).start()
	return &Client{session: s}
}

type clientAssigner struct {
	user        Assigner
	disableEcho bool
}

func (a clientAssigner) Assign(ctx context.Context, method string) Handler {
	if a.user != nil {
		if h := a.user.Assign(ctx, method); h != nil {
			return h
		}
	}
	if method == "echo" && !a.disableEcho {
		return echoHandler
	}
	return nil
}

// Call invokes method on the server and waits for its result. Exactly one of
// positional and named may be non-empty. The returned error is a *Fault for a
// protocol error echoed by the peer (or a local InvalidParams fault when both
// are supplied), ErrTimeout when the request timeout elapses, ctx's error if
// ctx ends first, ErrConnClosed or the underlying write error for a
// transport-level failure, or nil on success.
func (c *Client) Call(ctx context.Context, method string, positional []any, named map[string]any) (json.RawMessage, error) {
	rsp, err := c.session.Call(ctx, method, positional, named)
	if err != nil {
		return nil, err
	}
	if rsp.Fault != nil {
		return nil, rsp.Fault
	}
	return rsp.Result, nil
}

// broadcastParams is the nested request envelope the reserved "broadcast"
// method expects as its single named parameter.
type broadcastParams struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Broadcast asks the server to fan method and params out to every other
// currently connected client, and returns the number of recipients the
// server reports having written to successfully.
func (c *Client) Broadcast(ctx context.Context, method string, positional []any, named map[string]any) (int, error) {
	if len(positional) > 0 && len(named) > 0 {
		return 0, Faultf(code.InvalidParams, "broadcast: only one of positional or named parameters may be supplied")
	}
	var params Params
	switch {
	case len(positional) > 0:
		params = PositionalOf(positional)
	case len(named) > 0:
		params = NamedOf(named)
	}

	nested := NamedOf(broadcastParams{Method: method, Params: params.Raw()})
	rsp, err := c.session.CallParams(ctx, "broadcast", nested)
	if err != nil {
		return 0, err
	}
	if rsp.Fault != nil {
		return 0, rsp.Fault
	}
	var count int
	if err := json.Unmarshal(rsp.Result, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// SetRequestTimeout changes the timeout applied to calls issued after this
// point. Zero disables the timeout.
func (c *Client) SetRequestTimeout(d time.Duration) { c.session.SetRequestTimeout(d) }

// Close disconnects the client, completing any call still in flight with
// ErrConnClosed.
func (c *Client) Close() error { return c.session.Close() }
