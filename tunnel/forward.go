package tunnel

// forward.go - SSH forwarded-tcpip listener.
//
// ssh.Client.Listen matches forwarded-tcpip channels against the exact
// bind address it sent, and some gateways echo back a different one
// ("0.0.0.0" for ""), so every channel would be rejected.  We register
// the channel handler ourselves and accept all of them.

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── forwardListener ─────────────────────────────────────────────────

// forwardListener is a net.Listener over forwarded-tcpip channels.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept returns the next player arriving on the gateway.  It returns
// io.EOF once the listener or the SSH connection is closed.
func (l *forwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, io.EOF
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			return nil, fmt.Errorf("channel accept: %w", err)
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var payload forwardedTCPPayload
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
			raddr = &net.TCPAddr{
				IP:   net.ParseIP(payload.OriginAddr),
				Port: int(payload.OriginPort),
			}
		}
		return &chanConn{Channel: ch, raddr: raddr}, nil
	}
}

// Close cancels the remote port forward and unblocks Accept.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", false, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

func (l *forwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// listenRemoteForward sends a tcpip-forward request and returns a
// listener for the channels the gateway opens in response.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (*forwardListener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, _, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward %s denied by gateway", net.JoinHostPort(bindAddr, fmt.Sprint(bindPort)))
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: uint32(bindPort),
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn adapts an ssh.Channel to net.Conn.  SSH channels have no
// deadlines, so an expired deadline closes the channel and the pending
// Read or Write reports os.ErrDeadlineExceeded.  Unlike a TCP conn the
// channel is unusable afterwards; a timed-out player is dropped anyway.
type chanConn struct {
	ssh.Channel
	raddr net.Addr

	mu      sync.Mutex
	timers  [2]*time.Timer // read, write
	expired atomic.Bool
}

func (c *chanConn) Read(p []byte) (int, error) {
	n, err := c.Channel.Read(p)
	if err != nil && c.expired.Load() {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *chanConn) Write(p []byte) (int, error) {
	n, err := c.Channel.Write(p)
	if err != nil && c.expired.Load() {
		return n, os.ErrDeadlineExceeded
	}
	return n, err
}

func (c *chanConn) Close() error {
	c.mu.Lock()
	for i, t := range c.timers {
		if t != nil {
			t.Stop()
			c.timers[i] = nil
		}
	}
	c.mu.Unlock()
	return c.Channel.Close()
}

func (c *chanConn) LocalAddr() net.Addr  { return &net.TCPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr { return c.raddr }

func (c *chanConn) SetDeadline(t time.Time) error {
	c.arm(0, t)
	c.arm(1, t)
	return nil
}
func (c *chanConn) SetReadDeadline(t time.Time) error  { c.arm(0, t); return nil }
func (c *chanConn) SetWriteDeadline(t time.Time) error { c.arm(1, t); return nil }

func (c *chanConn) arm(i int, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timers[i] != nil {
		c.timers[i].Stop()
		c.timers[i] = nil
	}
	if t.IsZero() {
		return
	}
	c.timers[i] = time.AfterFunc(time.Until(t), c.expire)
}

func (c *chanConn) expire() {
	c.expired.Store(true)
	c.Channel.Close()
}
