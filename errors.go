package eventsocket

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means no correlated reply arrived within the response
	// timeout. The connection itself stays usable.
	ErrTimeout = errors.New("timed out awaiting reply")

	// ErrCancelled means the connection went away before the reply (or
	// awaited event) arrived. Every pending transaction fails with it.
	ErrCancelled = errors.New("connection closed before reply arrived")

	// ErrDisposed is returned by operations started on a connection that
	// has already been torn down.
	ErrDisposed = errors.New("connection disposed")
)

// InboundFailureReason classifies why an inbound handshake failed.
type InboundFailureReason int

const (
	// InboundFailureTransport covers dial and socket errors.
	InboundFailureTransport InboundFailureReason = iota
	// InboundFailureTimeout means no auth/request arrived in time.
	InboundFailureTimeout
	// InboundFailureInvalidPassword means FreeSWITCH rejected the auth
	// command.
	InboundFailureInvalidPassword
)

func (r InboundFailureReason) String() string {
	switch r {
	case InboundFailureTimeout:
		return "timeout"
	case InboundFailureInvalidPassword:
		return "invalid password"
	default:
		return "transport error"
	}
}

// InboundError reports a failed inbound connection attempt, preserving the
// underlying cause.
type InboundError struct {
	Reason   InboundFailureReason
	Endpoint string
	Message  string
	Err      error
}

func (e *InboundError) Error() string {
	s := fmt.Sprintf("inbound connection to %s failed: %s", e.Endpoint, e.Reason)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *InboundError) Unwrap() error { return e.Err }

// CommandError reports a command/reply that FreeSWITCH answered with
// something other than +OK (normally -ERR).
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
}
