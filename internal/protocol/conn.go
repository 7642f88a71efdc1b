package protocol

import "time"

// Conn is one client's bidirectional message channel.  Transports
// (framed TCP, WebSocket) implement it; the session only ever sees this
// interface.
//
// ReadMessage must not be called concurrently with itself, nor
// WriteMessage with itself.  One reader and one writer may run at the
// same time.
type Conn interface {
	// ReadMessage blocks for the next message.  A frame that cannot be
	// decoded yields an error wrapping ErrMalformed or ErrUnknownMessage.
	ReadMessage() (Message, error)

	// WriteMessage encodes and sends m.
	WriteMessage(m Message) error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// Close releases the underlying connection.  Safe to call more than
	// once; a blocked ReadMessage returns an error.
	Close() error

	// RemoteAddr is the peer address for logs.
	RemoteAddr() string

	// ID is a unique identifier assigned when the connection was
	// accepted.
	ID() string
}
