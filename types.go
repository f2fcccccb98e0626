// Package duplexrpc implements a bidirectional, line-framed JSON-RPC-style
// transport over a full-duplex byte stream (typically TCP, optionally TLS).
// Both peers of a Session may issue calls; a Server additionally exposes a
// broadcast fan-out primitive across all of its live sessions.
//
// Unlike JSON-RPC 2.0 proper, this protocol has no batching, no
// notification-only messages (every call carries an id and expects exactly
// one reply), no version negotiation, and no framing other than one JSON
// object per line terminated by "\n".
package duplexrpc

import "encoding/json"

// A ParamsKind classifies the shape of a request's parameters.
type ParamsKind int

const (
	NoParams         ParamsKind = iota // no parameters were supplied
	PositionalParams                   // params is a JSON array
	NamedParams                        // params is a JSON object
)

func (k ParamsKind) String() string {
	switch k {
	case PositionalParams:
		return "positional"
	case NamedParams:
		return "named"
	default:
		return "none"
	}
}

// Params is the tagged variant of a request's parameters described by
// spec.md's design notes: Params ::= None | Positional(seq) | Named(map).
// The zero value is NoParams.
type Params struct {
	Kind ParamsKind
	raw  json.RawMessage // the undecoded JSON array or object; nil if Kind == NoParams
}

// PositionalOf constructs a Params value carrying v marshaled as a JSON
// array. It panics if v does not marshal to a JSON array.
func PositionalOf(v any) Params {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("duplexrpc: positional params do not marshal: " + err.Error())
	}
	if firstByte(raw) != '[' {
		panic("duplexrpc: positional params must marshal to a JSON array")
	}
	return Params{Kind: PositionalParams, raw: raw}
}

// NamedOf constructs a Params value carrying v marshaled as a JSON object. It
// panics if v does not marshal to a JSON object.
func NamedOf(v any) Params {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("duplexrpc: named params do not marshal: " + err.Error())
	}
	if firstByte(raw) != '{' {
		panic("duplexrpc: named params must marshal to a JSON object")
	}
	return Params{Kind: NamedParams, raw: raw}
}

// HasParams reports whether p carries any parameters.
func (p Params) HasParams() bool { return p.Kind != NoParams }

// Raw returns the undecoded JSON encoding of the parameters, or nil if
// p.Kind == NoParams.
func (p Params) Raw() json.RawMessage { return p.raw }

// UnmarshalTo decodes the parameters into v. For PositionalParams, v should
// be a pointer to a slice; for NamedParams, a pointer to a map or struct. If
// p.Kind == NoParams, UnmarshalTo leaves v untouched and returns nil.
func (p Params) UnmarshalTo(v any) error {
	if p.Kind == NoParams {
		return nil
	}
	return json.Unmarshal(p.raw, v)
}

// A Request is one decoded request envelope: {"id", "method"[, "params"]}.
type Request struct {
	ID     int64
	Method string
	Params Params
}

// HasParams reports whether req carries any parameters.
func (req *Request) HasParams() bool { return req.Params.HasParams() }

// UnmarshalParams decodes the request's parameters into v. See
// Params.UnmarshalTo for the expected shape of v.
func (req *Request) UnmarshalParams(v any) error { return req.Params.UnmarshalTo(v) }

// A Response is one decoded response envelope. Exactly one of Result and
// Fault is set.
type Response struct {
	ID     int64
	Result json.RawMessage
	Fault  *Fault
}

// IsError reports whether r carries a Fault rather than a result.
func (r *Response) IsError() bool { return r.Fault != nil }

// A Frame is the classification of one decoded line of input, per spec.md
// §4.1's decode_frame classification rules. Exactly one of Request,
// Response, or BadFault is set; a completely unclassifiable line is reported
// by DecodeFrame returning a non-nil error instead of a *Frame.
type Frame struct {
	Request  *Request
	Response *Response

	// BadID and BadFault are set when the line was structurally recognizable
	// as an attempted request (it had an integer "id" and a "method"), but
	// violated the envelope shape. The session replies with a response bound
	// to BadID carrying BadFault, rather than closing the connection.
	BadID    int64
	BadFault *Fault
}

// IsRequest reports whether f classified its input as a request.
func (f *Frame) IsRequest() bool { return f.Request != nil }

// IsResponse reports whether f classified its input as a response.
func (f *Frame) IsResponse() bool { return f.Response != nil }

// IsBad reports whether f classified its input as a malformed request whose
// id could still be recovered.
func (f *Frame) IsBad() bool { return f.BadFault != nil }
