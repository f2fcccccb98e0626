package duplexrpc

import (
	"fmt"

	"github.com/airyai/duplexrpc/code"
)

// A Fault is the (code, message) error pair the protocol transports in a
// response's "error" field. Faults are the only error shape that crosses the
// wire; handler-internal detail never reaches the peer.
type Fault struct {
	Code    code.Code `json:"code"`
	Message string    `json:"message"`
}

// Error satisfies the error interface.
func (f *Fault) Error() string { return fmt.Sprintf("[%d] %s", f.Code, f.Message) }

// ErrCode satisfies code.ErrCoder, so code.FromError recovers the original
// code from a Fault returned by a handler.
func (f *Fault) ErrCode() code.Code { return f.Code }

// newFault builds a Fault using the canonical message text for c.
func newFault(c code.Code) *Fault { return &Fault{Code: c, Message: c.String()} }

// Faultf builds a Fault with a caller-supplied message. Use this sparingly:
// per the protocol's error handling design, only method-resolution and
// argument-binding faults should carry detail; internal failures must use the
// canonical InternalError text so handler internals are never exposed.
func Faultf(c code.Code, format string, args ...any) *Fault {
	return &Fault{Code: c, Message: fmt.Sprintf(format, args...)}
}

// withDetail is a convenience for attaching a formatted detail string to a
// copy of f without mutating f.
func (f *Fault) withDetail(detail string) *Fault {
	if detail == "" {
		return f
	}
	return &Fault{Code: f.Code, Message: f.Message + ": " + detail}
}
