package duplexrpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"expvar"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/airyai/duplexrpc/channel"
	"github.com/airyai/duplexrpc/code"
)

// A Server accepts connections on a net.Listener, wraps each in a Session
// framed over channel.Line, and dispatches inbound requests to a
// caller-supplied Assigner. It additionally exposes the reserved "broadcast"
// method, and the conventional "echo" method unless disabled, on every
// session it owns.
type Server struct {
	mux  Assigner
	opts *ServerOptions

	mu       sync.Mutex
	sessions map[*Session]time.Time

	metrics *expvar.Map
}

// NewServer constructs a Server that dispatches to mux. Call Serve to start
// accepting connections on a listener.
func NewServer(mux Assigner, opts *ServerOptions) *Server {
	return &Server{
		mux:      mux,
		opts:     opts,
		sessions: make(map[*Session]time.Time),
		metrics:  new(expvar.Map).Init(),
	}
}

// Serve accepts connections from lst until it returns an error (including
// when ctx is cancelled, which closes lst). Each accepted connection is
// served by its own Session until the client disconnects; Serve does not
// return until lst.Accept fails.
//
// If tlsConfig is non-nil, lst is wrapped with tls.NewListener so every
// accepted connection is a TLS server connection. Its handshake runs on the
// Session's first read or write; a failed handshake ends that Session.
func (srv *Server) Serve(ctx context.Context, lst net.Listener, tlsConfig *tls.Config) error {
	if tlsConfig != nil {
		lst = tls.NewListener(lst, tlsConfig)
	}
	go func() {
		<-ctx.Done()
		lst.Close()
	}()

	logf := srv.opts.sessionOptions().logger().logf()
	for {
		conn, err := lst.Accept()
		if err != nil {
			return err
		}
		peer := conn.RemoteAddr().String()
		go srv.handleConn(peer, conn, logf)
	}
}

func (srv *Server) handleConn(peer string, conn net.Conn, logf func(string, ...any)) {
	ch := channel.Line(conn, conn)
	s := newSession(peer, ch, nil, srv.opts.sessionOptions())
	s.assigner = srv.sessionAssigner(s)
	s.badFrame = srv.closeOnBadFrame
	s.start()

	srv.mu.Lock()
	srv.sessions[s] = time.Now()
	srv.mu.Unlock()
	srv.metrics.Add("sessions_accepted", 1)

	logf("accepted connection from %s", peer)
	<-s.closedCh

	srv.mu.Lock()
	delete(srv.sessions, s)
	srv.mu.Unlock()
	logf("closed connection from %s", peer)
}

// closeOnBadFrame is the server-side bad-message hook: it replies with an
// InvalidRequest fault bound to a null id and then tears the session down,
// matching the stricter server-side handling spec.md calls for.
func (srv *Server) closeOnBadFrame(s *Session) {
	frame, err := EncodeFaultNullID(newFault(code.InvalidRequest))
	if err == nil {
		s.enqueueWrite(frame)
	}
	s.abandon(fmt.Errorf("duplexrpc: unclassifiable frame from %s", s.peerName))
}

// SessionCount reports the number of currently live sessions.
func (srv *Server) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// sessionAssigner builds the Assigner presented to one server-accepted
// session: the reserved "broadcast" method and, unless disabled, the
// conventional "echo" method, layered over the server's own mux.
func (srv *Server) sessionAssigner(origin *Session) Assigner {
	return &serverAssigner{srv: srv, origin: origin}
}

type serverAssigner struct {
	srv    *Server
	origin *Session
}

func (a *serverAssigner) Assign(ctx context.Context, method string) Handler {
	if method == "broadcast" {
		return a.srv.broadcastHandler(a.origin)
	}
	if a.srv.mux != nil {
		if h := a.srv.mux.Assign(ctx, method); h != nil {
			return h
		}
	}
	if method == "echo" && !a.srv.opts.disableEcho() {
		return echoHandler
	}
	return nil
}

// broadcastHandler implements the reserved "broadcast" method: its single
// parameter is a nested request envelope {"method", "params"} (or, for
// compatibility with looser callers, a two-element positional array
// [method, params]). A malformed payload fails locally with InvalidParams;
// it never reaches Broadcast.
func (srv *Server) broadcastHandler(origin *Session) Handler {
	return func(ctx context.Context, req *Request) (any, error) {
		method, params, fault := parseBroadcastParams(req.Params)
		if fault != nil {
			return nil, fault
		}
		count := srv.Broadcast(origin, method, params)
		return count, nil
	}
}

func parseBroadcastParams(p Params) (method string, params Params, fault *Fault) {
	switch p.Kind {
	case NamedParams:
		var nested struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := p.UnmarshalTo(&nested); err != nil || nested.Method == "" {
			return "", Params{}, newFault(code.InvalidParams)
		}
		return nested.Method, rawToParams(nested.Params), nil
	case PositionalParams:
		var seq []json.RawMessage
		if err := p.UnmarshalTo(&seq); err != nil || len(seq) == 0 {
			return "", Params{}, newFault(code.InvalidParams)
		}
		var method string
		if err := json.Unmarshal(seq[0], &method); err != nil || method == "" {
			return "", Params{}, newFault(code.InvalidParams)
		}
		var nested Params
		if len(seq) >= 2 {
			nested = rawToParams(seq[1])
		}
		return method, nested, nil
	default:
		return "", Params{}, newFault(code.InvalidParams)
	}
}

func rawToParams(raw json.RawMessage) Params {
	if len(raw) == 0 || isJSONNull(raw) {
		return Params{}
	}
	switch firstByte(raw) {
	case '[':
		return Params{Kind: PositionalParams, raw: raw}
	case '{':
		return Params{Kind: NamedParams, raw: raw}
	default:
		return Params{}
	}
}

// Broadcast encodes one request envelope for method and params -- using an
// id drawn from origin's own allocator -- and writes the identical bytes to
// every session the server currently holds except origin. It returns the
// number of sessions the write succeeded on. Per spec.md, the server does
// not collect or correlate any replies recipients may send back.
func (srv *Server) Broadcast(origin *Session, method string, params Params) int {
	id := origin.nextRequestID()
	frame, err := EncodeRequest(id, method, params)
	if err != nil {
		return 0
	}

	srv.mu.Lock()
	recipients := make([]*Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		if s != origin {
			recipients = append(recipients, s)
		}
	}
	srv.mu.Unlock()

	count := 0
	for _, s := range recipients {
		if s.enqueueWrite(frame) == nil {
			count++
		}
	}
	srv.metrics.Add("broadcasts_sent", 1)
	srv.metrics.Add("broadcast_recipients", int64(count))
	return count
}
