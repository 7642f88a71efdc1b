// Package lobby pairs incoming players first-come, first-served and
// hands each pair to a new session.
//
// One goroutine (Run) owns the waiting queue; listeners feed it through
// Admit, usually via Serve.  Sessions run on their own goroutines and
// nothing they do is reported back to the lobby.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	apperr "salvo/internal/errors"
	"salvo/internal/metrics"
	"salvo/internal/protocol"
	"salvo/internal/transport"
	"salvo/util"
)

// Runner is a started-on-demand match between two players.
type Runner interface {
	ID() string
	Run(ctx context.Context) error
}

// Factory builds a match for two paired connections.  a is the player
// who waited longer.
type Factory func(a, b protocol.Conn) (Runner, error)

// Option customises a Lobby.
type Option func(*Lobby)

// WithLogger sets the lobby's logger.
func WithLogger(l *util.Logger) Option {
	return func(lb *Lobby) { lb.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(lb *Lobby) { lb.metrics = m }
}

// Lobby is the FIFO admission queue.
type Lobby struct {
	factory Factory
	logger  *util.Logger
	metrics *metrics.Collector

	admit   chan protocol.Conn
	done    chan struct{}
	waiting atomic.Int64

	sessions sync.WaitGroup
}

// New returns a lobby that builds matches with factory.  Call Run to
// start pairing.
func New(factory Factory, opts ...Option) *Lobby {
	l := &Lobby{
		factory: factory,
		logger:  util.NewLogger(0),
		admit:   make(chan protocol.Conn),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("lobby")
	return l
}

// Waiting returns the number of players queued for an opponent.
func (l *Lobby) Waiting() int { return int(l.waiting.Load()) }

// Admit queues c behind every player already waiting.  After Run has
// returned, c is closed and ErrLobbyClosed is returned.
func (l *Lobby) Admit(c protocol.Conn) error {
	tc := l.track(c)
	select {
	case l.admit <- tc:
		return nil
	case <-l.done:
		tc.Close()
		return apperr.ErrLobbyClosed
	}
}

// Run pairs queued players until ctx is done.  On the way out it
// closes every connection still waiting and waits for running
// sessions, whose contexts derive from ctx, to finish.
func (l *Lobby) Run(ctx context.Context) error {
	defer close(l.done)

	var queue []protocol.Conn
	for {
		select {
		case c := <-l.admit:
			queue = append(queue, c)
			l.logger.Verbose("%s joined, %d waiting", c.RemoteAddr(), len(queue))
			for len(queue) >= 2 {
				a, b := queue[0], queue[1]
				queue[0], queue[1] = nil, nil
				queue = queue[2:]
				l.pair(ctx, a, b)
			}
			l.setWaiting(len(queue))

		case <-ctx.Done():
			for _, c := range queue {
				c.Close()
			}
			if len(queue) > 0 {
				l.logger.Verbose("closed %d waiting connection(s)", len(queue))
			}
			l.setWaiting(0)
			l.sessions.Wait()
			return nil
		}
	}
}

func (l *Lobby) pair(ctx context.Context, a, b protocol.Conn) {
	r, err := l.factory(a, b)
	if err != nil {
		l.logger.Warn("pairing %s with %s: %v", a.RemoteAddr(), b.RemoteAddr(), err)
		l.metrics.RecordError(err.Error())
		a.Close()
		b.Close()
		return
	}

	l.logger.Info("match %s: %s vs %s", r.ID(), a.RemoteAddr(), b.RemoteAddr())
	l.sessions.Add(1)
	go func() {
		defer l.sessions.Done()
		if err := r.Run(ctx); err != nil {
			l.logger.Debug("match %s ended: %v", r.ID(), err)
		}
	}()
}

func (l *Lobby) setWaiting(n int) {
	l.waiting.Store(int64(n))
	l.metrics.SetWaiting(n)
}

// Serve accepts connections from ln, wraps each with wrap and admits
// it.  The listener is closed when ctx is done, in which case Serve
// returns nil; any other accept failure is returned.
func (l *Lobby) Serve(ctx context.Context, ln net.Listener, wrap transport.Wrapper) error {
	defer ln.Close()

	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-l.done:
			ln.Close()
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) && l.closed() {
				return apperr.ErrLobbyClosed
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}

		l.logger.Verbose("connection from %s", conn.RemoteAddr())
		if err := l.Admit(wrap(conn)); err != nil {
			return err
		}
	}
}

func (l *Lobby) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// ── connection accounting ────────────────────────────────────────────

// trackedConn reports its close to the metrics collector exactly once.
type trackedConn struct {
	protocol.Conn
	once    sync.Once
	metrics *metrics.Collector
}

func (l *Lobby) track(c protocol.Conn) protocol.Conn {
	l.metrics.ConnectionOpened()
	return &trackedConn{Conn: c, metrics: l.metrics}
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.metrics.ConnectionClosed)
	return err
}
