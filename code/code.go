// Package code defines the error code values used by the duplexrpc wire
// protocol, along with a small set of additional codes used internally to
// classify local failures that never cross the wire under those numbers.
package code

import (
	"context"
	"errors"
	"fmt"
)

// A Code is an error code carried in a protocol Fault's "code" field.
//
// The five values below are the only codes this protocol's core ever places
// on the wire; see https://www.jsonrpc.org/specification#error_object for the
// conventions this numbering follows loosely. Implementations must not invent
// additional codes for core failures.
type Code int32

// Wire error codes. These are the only codes the protocol emits in a Fault
// sent to a peer.
const (
	InternalError  Code = -32500 // Internal server error
	InvalidRequest Code = -32600 // Invalid JSON-RPC message
	MethodNotFound Code = -32601 // Procedure not found
	InvalidParams  Code = -32602 // Parameters invalid
	ParseError     Code = -32700 // Parse error
)

// Additional codes used only to classify local errors (e.g. for logging or
// for FromError); these are never encoded into a wire Fault by the core
// itself, though application handlers remain free to return them.
const (
	NoError          Code = -32099 // no error (used by FromError on a nil error)
	SystemError      Code = -32098 // errors from the operating environment
	Cancelled        Code = -32097 // request cancelled (context.Canceled)
	DeadlineExceeded Code = -32096 // request deadline exceeded (context.DeadlineExceeded)
)

var codeText = map[Code]string{
	InternalError:  "Internal server error.",
	InvalidRequest: "Invalid JSON-RPC message.",
	MethodNotFound: "Procedure not found.",
	InvalidParams:  "Parameters invalid.",
	ParseError:     "Parse error.",

	NoError:          "no error (success)",
	SystemError:      "system error",
	Cancelled:        "request cancelled",
	DeadlineExceeded: "deadline exceeded",
}

// String returns the canonical message text for c if one is known, or a
// generic placeholder otherwise.
func (c Code) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", c)
}

// An ErrCoder is a value that can report a Code describing itself.
type ErrCoder interface {
	ErrCode() Code
}

// codeError adapts a bare Code to the error interface, so a Code can be
// compared with errors.Is without being usable as an error by accident.
type codeError Code

func (c codeError) Error() string { return Code(c).String() }
func (c codeError) ErrCode() Code { return Code(c) }

func (c codeError) Is(err error) bool {
	var v ErrCoder
	return errors.As(err, &v) && v.ErrCode() == Code(c)
}

// Err converts c to an error, or nil if c == NoError.
func (c Code) Err() error {
	if c == NoError {
		return nil
	}
	return codeError(c)
}

// FromError classifies err into a Code.
//
//   - nil reports NoError.
//   - An error implementing ErrCoder reports its own code.
//   - context.Canceled and context.DeadlineExceeded report Cancelled and
//     DeadlineExceeded respectively.
//   - Anything else reports SystemError.
func FromError(err error) Code {
	if err == nil {
		return NoError
	}
	var c ErrCoder
	if errors.As(err, &c) {
		return c.ErrCode()
	} else if errors.Is(err, context.Canceled) {
		return Cancelled
	} else if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return SystemError
}
