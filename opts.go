package duplexrpc

import (
	"context"
	"fmt"
	"log"
	"time"
)

// A Logger records text debug logs from a Session, Server, or Client. A nil
// Logger discards all input.
type Logger func(text string)

// Printf writes a formatted message to lg. If lg == nil, the message is
// discarded.
func (lg Logger) Printf(msg string, args ...any) {
	if lg != nil {
		lg(fmt.Sprintf(msg, args...))
	}
}

// StdLogger adapts a *log.Logger to a Logger. If logger == nil, the returned
// Logger writes to the default log package logger.
func StdLogger(logger *log.Logger) Logger {
	if logger == nil {
		return func(text string) { log.Output(2, text) }
	}
	return func(text string) { logger.Output(2, text) }
}

func (lg Logger) logf() func(string, ...any) {
	if lg == nil {
		return func(string, ...any) {}
	}
	return lg.Printf
}

// An RPCLogger receives callbacks recording the receipt of requests and the
// delivery of responses on a Session. The callbacks run synchronously with
// request processing.
type RPCLogger interface {
	// LogRequest is called for each request received, before its handler runs.
	LogRequest(ctx context.Context, req *Request)

	// LogResponse is called for each response, immediately before it is sent.
	LogResponse(ctx context.Context, rsp *Response)
}

type nullRPCLogger struct{}

func (nullRPCLogger) LogRequest(context.Context, *Request)   {}
func (nullRPCLogger) LogResponse(context.Context, *Response) {}

// SessionOptions control the behaviour of a Session. A nil *SessionOptions
// provides sensible defaults.
type SessionOptions struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// If not nil, log each request received and response sent.
	RPCLog RPCLogger

	// RequestTimeout bounds each locally issued Call. Zero means no timeout.
	// This may be changed at any time via Session.SetRequestTimeout.
	RequestTimeout time.Duration

	// Concurrency bounds the number of inbound requests this session will
	// execute in parallel. A value less than 1 means unbounded.
	Concurrency int64

	// WriteQueueSize bounds the number of pending outbound frames buffered
	// for the session's writer goroutine. A value less than 1 uses a small
	// default.
	WriteQueueSize int
}

func (o *SessionOptions) logger() Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

func (o *SessionOptions) rpcLog() RPCLogger {
	if o == nil || o.RPCLog == nil {
		return nullRPCLogger{}
	}
	return o.RPCLog
}

func (o *SessionOptions) requestTimeout() time.Duration {
	if o == nil {
		return 0
	}
	return o.RequestTimeout
}

func (o *SessionOptions) concurrency() int64 {
	if o == nil || o.Concurrency < 1 {
		return 1 << 30 // effectively unbounded
	}
	return o.Concurrency
}

func (o *SessionOptions) writeQueueSize() int {
	if o == nil || o.WriteQueueSize < 1 {
		return 64
	}
	return o.WriteQueueSize
}

// ServerOptions control the behaviour of a Server created by NewServer. A
// nil *ServerOptions provides sensible defaults. It is safe to share server
// options among multiple Server instances.
type ServerOptions struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// If not nil, log each request received and response sent by every
	// session the server owns.
	RPCLog RPCLogger

	// Concurrency bounds the number of inbound requests any one session will
	// execute in parallel. A value less than 1 means unbounded.
	Concurrency int64

	// DisableEcho disables the conventional built-in "echo" method, allowing
	// a caller-supplied Assigner to take over the name entirely.
	DisableEcho bool
}

func (o *ServerOptions) sessionOptions() *SessionOptions {
	if o == nil {
		return nil
	}
	return &SessionOptions{
		Logger:      o.Logger,
		RPCLog:      o.RPCLog,
		Concurrency: o.Concurrency,
	}
}

func (o *ServerOptions) disableEcho() bool { return o != nil && o.DisableEcho }

// ClientOptions control the behaviour of a Client created by Dial or
// NewClient. A nil *ClientOptions provides sensible defaults.
type ClientOptions struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// If not nil, log each request received and response sent.
	RPCLog RPCLogger

	// RequestTimeout bounds each Call made through the client. Zero means no
	// timeout. This may be changed later with Client.SetRequestTimeout.
	RequestTimeout time.Duration

	// Assigner, if set, exposes additional methods the remote peer may call
	// on this client (the protocol is symmetric). The built-in "echo" method
	// is always available unless DisableEcho is set; Assigner may override
	// it.
	Assigner Assigner

	// DisableEcho disables the conventional built-in "echo" method, allowing
	// Assigner to take over the name entirely.
	DisableEcho bool
}

func (o *ClientOptions) sessionOptions() *SessionOptions {
	if o == nil {
		return nil
	}
	return &SessionOptions{
		Logger:         o.Logger,
		RPCLog:         o.RPCLog,
		RequestTimeout: o.RequestTimeout,
	}
}

func (o *ClientOptions) assigner() Assigner {
	if o == nil {
		return nil
	}
	return o.Assigner
}

func (o *ClientOptions) disableEcho() bool { return o != nil && o.DisableEcho }
