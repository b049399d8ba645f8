package cortex

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned to calls that were pending, or issued, after the
	// engine stopped.
	ErrClosed = errors.New("cortex: engine closed")
	// ErrDuplicateID indicates a call reused an identifier that is still in flight.
	ErrDuplicateID = errors.New("cortex: identifier already in flight")
	// ErrTransportClosed is the SendError returned once the connection is closed.
	ErrTransportClosed = &SendError{Err: errors.New("connection closed")}
	// ErrInvalidTransition is returned when a session step runs out of order.
	ErrInvalidTransition = errors.New("cortex: invalid session transition")
	// ErrNoHeadset is returned when no headset matches a query.
	ErrNoHeadset = errors.New("cortex: no headset found")
)

// ConnectionError is a transport-level failure. It is fatal to the engine.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cortex: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a failed write on the transport.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "cortex: send: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// RemoteError carries the error object of a JSON-RPC reply.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// MalformedFrameError describes an inbound frame that could not be classified.
type MalformedFrameError struct {
	Reason string
	Frame  []byte
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return "cortex: malformed frame: " + e.Reason + ": " + e.Err.Error()
	}
	return "cortex: malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// TimeoutError is returned when a call's wait exceeds its bound.
type TimeoutError struct {
	Method  string
	ID      int
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("cortex: %s (id %#x) timed out after %s", e.Method, e.ID, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }
