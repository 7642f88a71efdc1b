// Package transport carries protocol messages over real connections.
// Transports handle framing (length-prefixed TCP, WebSocket text
// frames) independent of what the messages mean, which is the
// session's job.
package transport

import (
	"context"
	"net"

	"salvo/internal/protocol"
)

// DefaultMaxFrame bounds a single encoded message (64 KiB).
const DefaultMaxFrame = 64 * 1024

// MaxFrameLimit is the largest frame limit a connection will honour.
// Larger requests are clamped to it.
const MaxFrameLimit = 16 << 20

func frameLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxFrame
	case n > MaxFrameLimit:
		return MaxFrameLimit
	}
	return n
}

// Wrapper turns an accepted net.Conn into a protocol connection.
type Wrapper func(net.Conn) protocol.Conn

// Dialer opens outbound network connections.  Clients and tests use
// it to reach a server; the server itself only accepts.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
