package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	apperr "salvo/internal/errors"
	"salvo/internal/protocol"
)

const headerLen = 4

// FramedConn speaks the TCP wire format: a 4-byte big-endian length
// followed by that many bytes of JSON envelope.
type FramedConn struct {
	conn     net.Conn
	id       string
	maxFrame int
	r        *bufio.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewFramedConn wraps c.  maxFrame ≤ 0 selects DefaultMaxFrame and
// values above MaxFrameLimit are clamped.
func NewFramedConn(c net.Conn, maxFrame int) *FramedConn {
	maxFrame = frameLimit(maxFrame)
	return &FramedConn{
		conn:     c,
		id:       uuid.NewString(),
		maxFrame: maxFrame,
		r:        bufio.NewReader(c),
	}
}

// Framed returns a Wrapper producing FramedConns.
func Framed(maxFrame int) Wrapper {
	return func(c net.Conn) protocol.Conn { return NewFramedConn(c, maxFrame) }
}

// ReadMessage reads one frame and decodes it.
func (f *FramedConn) ReadMessage() (protocol.Message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
		return nil, apperr.Wrap("read", f.RemoteAddr(), err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: empty frame", apperr.ErrMalformed)
	}
	if uint64(n) > uint64(f.maxFrame) {
		return nil, fmt.Errorf("%w: %w (%d > %d)", apperr.ErrMalformed, apperr.ErrFrameTooLarge, n, f.maxFrame)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, apperr.Wrap("read", f.RemoteAddr(), err)
	}
	return protocol.Decode(body)
}

// WriteMessage encodes m and writes it as a single frame.
func (f *FramedConn) WriteMessage(m protocol.Message) error {
	body, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if len(body) > f.maxFrame {
		return fmt.Errorf("write %s: %w", m.Type(), apperr.ErrFrameTooLarge)
	}

	buf := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerLen:], body)

	f.wmu.Lock()
	defer f.wmu.Unlock()
	if _, err := f.conn.Write(buf); err != nil {
		return apperr.Wrap("write", f.RemoteAddr(), err)
	}
	return nil
}

func (f *FramedConn) SetReadDeadline(t time.Time) error  { return f.conn.SetReadDeadline(t) }
func (f *FramedConn) SetWriteDeadline(t time.Time) error { return f.conn.SetWriteDeadline(t) }

// Close closes the underlying connection once.
func (f *FramedConn) Close() error {
	f.closeOnce.Do(func() { f.closeErr = f.conn.Close() })
	return f.closeErr
}

// RemoteAddr returns the peer address.
func (f *FramedConn) RemoteAddr() string {
	if a := f.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

// ID returns the connection's unique identifier.
func (f *FramedConn) ID() string { return f.id }
