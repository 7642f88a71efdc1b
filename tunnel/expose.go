package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	apperr "salvo/internal/errors"
	"salvo/internal/metrics"
	"salvo/internal/retry"
	"salvo/util"
)

// ExposeConfig describes the remote port forward.
type ExposeConfig struct {
	SSH *SSHConfig

	RemoteBindAddress string // address to bind on the gateway; "" lets it decide
	RemotePort        int

	KeepAliveInterval time.Duration // 0 disables keepalive
	AutoReconnect     bool
	Backoff           *retry.Backoff // reconnect schedule; nil uses retry.DefaultBackoff
}

// Listener accepts players forwarded from the gateway.
type Listener struct {
	cfg     *ExposeConfig
	logger  *util.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	client  *ssh.Client
	forward *forwardListener
	closed  bool
}

// Expose connects to the gateway and requests the remote forward.  The
// listener closes itself when ctx is done.  The metrics collector is
// optional (nil-safe).
func Expose(ctx context.Context, cfg *ExposeConfig, logger *util.Logger, m *metrics.Collector) (*Listener, error) {
	l := &Listener{cfg: cfg, logger: logger.With("expose"), metrics: m}
	l.ctx, l.cancel = context.WithCancel(ctx)

	if err := l.connect(); err != nil {
		l.cancel()
		return nil, err
	}
	l.logger.Info("players can connect to %s on %s",
		util.FormatAddr(cfg.RemoteBindAddress, cfg.RemotePort), cfg.SSH.Host)

	go func() {
		<-l.ctx.Done()
		l.Close()
	}()
	return l, nil
}

// connect dials the gateway and installs a fresh forward.
func (l *Listener) connect() error {
	client, err := Dial(l.ctx, l.cfg.SSH, l.logger)
	if err != nil {
		return err
	}
	fwd, err := listenRemoteForward(client, l.cfg.RemoteBindAddress, l.cfg.RemotePort)
	if err != nil {
		client.Close()
		return apperr.WrapSSH("forward", l.cfg.SSH.Host, l.cfg.SSH.Port, err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		fwd.Close()
		client.Close()
		return net.ErrClosed
	}
	l.client, l.forward = client, fwd
	l.mu.Unlock()

	if l.cfg.KeepAliveInterval > 0 {
		l.wg.Add(1)
		go l.keepalive(client, fwd)
	}
	return nil
}

// Accept waits for the next forwarded player.  When the gateway
// connection drops and AutoReconnect is set, Accept reconnects before
// returning; otherwise the failure is returned.  After Close, Accept
// returns net.ErrClosed.
func (l *Listener) Accept() (net.Conn, error) {
	for {
		l.mu.Lock()
		fwd, closed := l.forward, l.closed
		l.mu.Unlock()
		if closed {
			return nil, net.ErrClosed
		}
		if fwd == nil {
			return nil, apperr.ErrNotConnected
		}

		conn, err := fwd.Accept()
		if err == nil {
			l.logger.Verbose("forwarded connection from %s", conn.RemoteAddr())
			return conn, nil
		}
		if l.isClosed() {
			return nil, net.ErrClosed
		}
		if !l.cfg.AutoReconnect {
			return nil, apperr.WrapSSH("accept", l.cfg.SSH.Host, l.cfg.SSH.Port, err)
		}

		l.logger.Warn("gateway connection lost: %v", err)
		if err := l.reconnect(); err != nil {
			return nil, err
		}
	}
}

// reconnect replaces the client and forward, retrying with backoff.
// Authentication failures are not retried.
func (l *Listener) reconnect() error {
	l.metrics.TunnelReconnect()
	l.teardown()

	b := retry.DefaultBackoff()
	if l.cfg.Backoff != nil {
		cp := *l.cfg.Backoff
		b = &cp
	}
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		l.logger.Error("reconnect attempt %d: %v (retrying in %v)", attempt, err, wait.Round(time.Millisecond))
		l.metrics.RecordError(fmt.Sprintf("tunnel reconnect: %v", err))
	}

	err := b.Do(l.ctx, func(int) error {
		err := l.connect()
		if errors.Is(err, apperr.ErrAuthFailed) || errors.Is(err, net.ErrClosed) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if l.isClosed() {
			return net.ErrClosed
		}
		return fmt.Errorf("reconnect to %s: %w", l.cfg.SSH.addr(), err)
	}
	l.logger.Info("reconnected to %s", l.cfg.SSH.addr())
	return nil
}

// keepalive pings the gateway and, on failure, closes the forward so
// that Accept notices and reconnects.
func (l *Listener) keepalive(client *ssh.Client, fwd *forwardListener) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-fwd.done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				if l.isClosed() {
					return
				}
				l.logger.Warn("keepalive failed: %v", err)
				l.metrics.RecordError(fmt.Sprintf("keepalive: %v", err))
				fwd.Close()
				client.Close()
				return
			}
			l.logger.Debug("keepalive OK")
		}
	}
}

func (l *Listener) teardown() {
	l.mu.Lock()
	fwd, client := l.forward, l.client
	l.forward, l.client = nil, nil
	l.mu.Unlock()

	if fwd != nil {
		fwd.Close()
	}
	if client != nil {
		client.Close()
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close cancels the forward, disconnects from the gateway and unblocks
// Accept.  It is idempotent.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.teardown()
	l.wg.Wait()
	return nil
}

// Addr returns the remote address players connect to.
func (l *Listener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.cfg.RemoteBindAddress), Port: l.cfg.RemotePort}
}
