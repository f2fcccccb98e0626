package duplexrpc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/airyai/duplexrpc/channel"
	"github.com/airyai/duplexrpc/code"
)

// ErrTimeout is returned by Session.Call when a locally issued call's request
// timeout elapses before a reply arrives.
var ErrTimeout = errors.New("duplexrpc: call timed out")

// ErrConnClosed is returned by Session.Call, and delivered to every call
// still awaiting a reply, once the underlying connection is abandoned.
var ErrConnClosed = errors.New("duplexrpc: connection closed")

// pendingResult is delivered exactly once to the goroutine blocked in Call
// for a given request id: either the peer's Response, or a local error if the
// session was abandoned before one arrived.
type pendingResult struct {
	response *Response
	err      error
}

// A Session manages one line-framed connection: it allocates request ids,
// demultiplexes inbound frames between the pending-call table and the
// dispatcher, and serializes all outbound writes through a single writer
// goroutine. Both peers of a Session may call Call; which one dialed and
// which one accepted is otherwise symmetric.
type Session struct {
	peerName string
	ch       channel.Channel
	assigner Assigner
	logf     func(string, ...any)
	rpcLog   RPCLogger
	sem      *semaphore.Weighted

	badFrame func(s *Session) // invoked on an unclassifiable line; nil means log-and-continue

	mu      sync.Mutex
	alive   bool
	nextID  int64
	pending map[int64]chan pendingResult
	timeout time.Duration

	writeq    chan writeRequest
	closedCh  chan struct{}
	closeOnce sync.Once

	wg sync.WaitGroup // tracks in-flight inbound-request goroutines
}

type writeRequest struct {
	data []byte
	done chan error
}

// newSession constructs a Session around ch; call start to launch its reader
// and writer goroutines. assigner may be nil, in which case every inbound
// request is answered with MethodNotFound.
func newSession(peerName string, ch channel.Channel, assigner Assigner, opts *SessionOptions) *Session {
	s := &Session{
		peerName: peerName,
		ch:       ch,
		assigner: assigner,
		logf:     opts.logger().logf(),
		rpcLog:   opts.rpcLog(),
		sem:      semaphore.NewWeighted(opts.concurrency()),
		alive:    true,
		nextID:   1,
		pending:  make(map[int64]chan pendingResult),
		timeout:  opts.requestTimeout(),
		writeq:   make(chan writeRequest, opts.writeQueueSize()),
		closedCh: make(chan struct{}),
	}
	return s
}

// start launches the session's writer and reader goroutines. It must be
// called exactly once, after any caller-side mutation of fields such as
// assigner or badFrame -- both goroutines begin reading those fields
// immediately and neither is synchronized against later assignment.
func (s *Session) start() *Session {
	go s.runWriter()
	go s.runReader()
	return s
}

// SetRequestTimeout changes the timeout applied to calls issued after this
// point. Zero disables the timeout.
func (s *Session) SetRequestTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

func (s *Session) requestTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// IsAlive reports whether the session's connection is still open.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// nextRequestID allocates the next id for a call this session issues. Ids
// start at 1 and wrap from 0xFFFFFFFF back to 1, never emitting 0.
func (s *Session) nextRequestID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	if s.nextID == 0xFFFFFFFF {
		s.nextID = 1
	}
	return id
}

// Call issues a request for method and blocks until a reply, a local
// timeout, or the loss of the connection. Exactly one of positional and
// named may be supplied; supplying both fails locally with InvalidParams
// without touching the wire.
func (s *Session) Call(ctx context.Context, method string, positional []any, named map[string]any) (*Response, error) {
	if len(positional) > 0 && len(named) > 0 {
		return nil, Faultf(code.InvalidParams, "call: only one of positional or named parameters may be supplied")
	}
	var params Params
	switch {
	case len(positional) > 0:
		params = PositionalOf(positional)
	case len(named) > 0:
		params = NamedOf(named)
	}
	return s.CallParams(ctx, method, params)
}

// CallParams is the low-level counterpart of Call, taking an already-built
// Params value. Broadcast and other internal callers use this directly.
func (s *Session) CallParams(ctx context.Context, method string, params Params) (*Response, error) {
	id := s.nextRequestID()
	slot := make(chan pendingResult, 1)

	// Insert the pending slot BEFORE writing the request bytes, so a reply
	// that races the return from the write below can never find an empty
	// table.
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil, ErrConnClosed
	}
	s.pending[id] = slot
	s.mu.Unlock()

	frame, err := EncodeRequest(id, method, params)
	if err != nil {
		s.dropPending(id)
		return nil, err
	}
	if err := s.enqueueWrite(frame); err != nil {
		s.dropPending(id)
		return nil, err
	}

	var timeoutC <-chan time.Time
	if d := s.requestTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case pr := <-slot:
		if pr.err != nil {
			return nil, pr.err
		}
		return pr.response, nil
	case <-timeoutC:
		s.dropPending(id)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case <-s.closedCh:
		return nil, ErrConnClosed
	}
}

func (s *Session) dropPending(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// enqueueWrite hands data to the session's dedicated writer goroutine and
// waits for it to be sent, so that all outbound frames -- requests,
// responses, and faults alike -- are serialized onto the wire one at a time.
func (s *Session) enqueueWrite(data []byte) error {
	done := make(chan error, 1)
	select {
	case s.writeq <- writeRequest{data: data, done: done}:
	case <-s.closedCh:
		return ErrConnClosed
	}
	select {
	case err := <-done:
		return err
	case <-s.closedCh:
		return ErrConnClosed
	}
}

func (s *Session) runWriter() {
	for {
		select {
		case req := <-s.writeq:
			err := s.ch.Send(req.data)
			if req.done != nil {
				req.done <- err
			}
			if err != nil {
				s.abandon(err)
			}
		case <-s.closedCh:
			return
		}
	}
}

func (s *Session) runReader() {
	for {
		raw, err := s.ch.Recv()
		if err != nil {
			s.abandon(err)
			return
		}
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue // empty lines are ignored
		}
		frame, derr := DecodeFrame(line)
		if derr != nil {
			s.handleBadFrame()
			continue
		}
		switch {
		case frame.IsRequest():
			s.wg.Add(1)
			go s.serveRequest(frame.Request)
		case frame.IsResponse():
			s.deliverResponse(frame.Response)
		case frame.IsBad():
			s.replyBad(frame.BadID, frame.BadFault)
		}
	}
}

func (s *Session) handleBadFrame() {
	if s.badFrame != nil {
		s.badFrame(s)
		return
	}
	s.logf("discarding unclassifiable frame from %s", s.peerName)
}

func (s *Session) replyBad(id int64, f *Fault) {
	frame, err := EncodeFault(id, f)
	if err != nil {
		s.logf("encoding bad-frame fault: %v", err)
		return
	}
	if err := s.enqueueWrite(frame); err != nil {
		s.logf("replying to malformed request %d: %v", id, err)
	}
}

func (s *Session) deliverResponse(resp *Response) {
	s.mu.Lock()
	slot, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.mu.Unlock()
	if !ok {
		s.logf("dropping response for unrecognized id %d from %s", resp.ID, s.peerName)
		return
	}
	slot <- pendingResult{response: resp}
}

func (s *Session) serveRequest(req *Request) {
	defer s.wg.Done()
	ctx := context.Background()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	s.rpcLog.LogRequest(ctx, req)
	resp := dispatch(ctx, s.assigner, req, s.logf)
	s.sem.Release(1)
	s.rpcLog.LogResponse(ctx, resp)

	var frame []byte
	var err error
	if resp.Fault != nil {
		frame, err = EncodeFault(resp.ID, resp.Fault)
	} else {
		frame, err = encodeResultRaw(resp.ID, resp.Result)
	}
	if err != nil {
		s.logf("encoding response to %q: %v", req.Method, err)
		frame, _ = EncodeFault(resp.ID, newFault(code.InternalError))
	}
	if werr := s.enqueueWrite(frame); werr != nil {
		s.logf("writing response to %q: %v", req.Method, werr)
	}
}

// abandon tears the session down: it marks the session dead, wakes every
// blocked writer and caller, and completes every pending call with
// ErrConnClosed. abandon is idempotent; the first call wins and subsequent
// calls are no-ops, matching the one-shot teardown the pending-call
// discipline requires.
func (s *Session) abandon(cause error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	snapshot := s.pending
	s.pending = make(map[int64]chan pendingResult)
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closedCh) })
	s.ch.Close()

	for _, slot := range snapshot {
		slot <- pendingResult{err: ErrConnClosed}
	}
	if cause != nil {
		s.logf("session with %s closed: %v", s.peerName, cause)
	}
}

// Close abandons the session, closing its underlying channel and completing
// every call still awaiting a reply with ErrConnClosed.
func (s *Session) Close() error {
	s.abandon(nil)
	return nil
}
