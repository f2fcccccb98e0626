package duplexrpc

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/airyai/duplexrpc/code"
)

// A Handler answers a single request. The returned value, if non-nil, must be
// JSON-marshalable and becomes the response's result. A handler may return a
// *Fault to control the precise error sent to the peer; any other non-nil
// error is reported to the peer as InternalError, with its detail stripped
// before it reaches the wire.
type Handler func(ctx context.Context, req *Request) (any, error)

// An Assigner resolves a method name to a Handler, or returns nil if the
// method is not exposed. Only methods explicitly registered with an Assigner
// are reachable by a remote peer; there is no reflective or inherited
// exposure of arbitrary Go values.
type Assigner interface {
	Assign(ctx context.Context, method string) Handler
}

// MethodMap is the trivial Assigner backed by a Go map.
type MethodMap map[string]Handler

// Assign implements Assigner.
func (m MethodMap) Assign(_ context.Context, method string) Handler { return m[method] }

// dispatch resolves and invokes the handler for req against assigner,
// converting the outcome to a Response per spec.md §4.3:
//
//   - no handler is assigned for req.Method: MethodNotFound.
//   - the handler panics or returns a plain error: InternalError, with the
//     underlying detail logged but not disclosed to the peer.
//   - the handler returns a *Fault: that Fault is sent verbatim.
//   - the handler's result does not encode to JSON: InternalError.
//   - otherwise: a successful Response carrying the encoded result.
func dispatch(ctx context.Context, assigner Assigner, req *Request, logf func(string, ...any)) *Response {
	if assigner == nil {
		return &Response{ID: req.ID, Fault: newFault(code.MethodNotFound)}
	}
	h := assigner.Assign(ctx, req.Method)
	if h == nil {
		return &Response{ID: req.ID, Fault: newFault(code.MethodNotFound)}
	}

	val, err := invoke(ctx, h, req, logf)
	if err != nil {
		if f, ok := err.(*Fault); ok {
			return &Response{ID: req.ID, Fault: f}
		}
		logf("handler for %q failed: %v", req.Method, err)
		return &Response{ID: req.ID, Fault: newFault(code.InternalError)}
	}

	raw, err := json.Marshal(val)
	if err != nil {
		logf("encoding result of %q failed: %v", req.Method, err)
		return &Response{ID: req.ID, Fault: newFault(code.InternalError)}
	}
	return &Response{ID: req.ID, Result: raw}
}

// invoke calls h, recovering a panic into an InternalError so that one
// misbehaving handler cannot take down the session's dispatch loop.
func invoke(ctx context.Context, h Handler, req *Request, logf func(string, ...any)) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logf("panic in handler for %q: %v\n%s", req.Method, p, debug.Stack())
			v, err = nil, newFault(code.InternalError)
		}
	}()
	return h(ctx, req)
}

// echoHandler implements the conventional "echo" method: it returns its
// single positional argument verbatim.
func echoHandler(_ context.Context, req *Request) (any, error) {
	if req.Params.Kind != PositionalParams {
		return nil, Faultf(code.InvalidParams, "echo requires one positional argument")
	}
	var args []json.RawMessage
	if err := req.Params.UnmarshalTo(&args); err != nil || len(args) != 1 {
		return nil, Faultf(code.InvalidParams, "echo requires exactly one argument")
	}
	return args[0], nil
}
