// Package link owns the line-oriented connection to the hub: dialing,
// STOP-on-connect, heartbeat, failure detection and reconnect with backoff.
package link

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned by Send when the link is not up.
	ErrNotConnected = errors.New("link not connected")
	// ErrTimeout marks a connect, write or heartbeat that ran out of time.
	ErrTimeout = errors.New("link timeout")
	// ErrWriteFailed marks a write the transport rejected.
	ErrWriteFailed = errors.New("link write failed")
)

// State of the connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// PingLine is the heartbeat sent on idle links. The hub treats it as a no-op.
const PingLine = "ping\n"

// Conn is an established line channel to the hub.
// WriteLine may be called concurrently with ReadLine but not with itself.
type Conn interface {
	WriteLine(line string) error
	ReadLine() (string, error)
	Close() error
}

// Transport dials new connections. Dial should honor ctx but the Manager
// bounds it either way.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}
