// Package session runs one match between two connected players.
//
// A Session owns both connections and drives them through
//
//	HANDSHAKE → PLACEMENT → BATTLE → GAME_OVER → REMATCH_DECISION
//
// returning to HANDSHAKE when both players ask for a rematch and
// ending in TERMINATED otherwise.  The session goroutine is the only
// code that touches the round's MatchState; during placement the two
// per-player readers hand their requests to it over a channel.
//
// Messages that do not fit the current phase are ignored.  A read or
// write failure, an undecodable frame or a phase timeout aborts the
// whole session: both connections are closed and nothing else is sent.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperr "salvo/internal/errors"
	"salvo/internal/game"
	"salvo/internal/metrics"
	"salvo/internal/protocol"
	"salvo/internal/registry"
	"salvo/util"
)

// Config holds the per-match parameters.  Zero timeouts disable the
// corresponding deadline.
type Config struct {
	Rules game.Rules

	PlacementTimeout time.Duration // whole placement phase, per player
	TurnTimeout      time.Duration // one attacker turn
	RematchTimeout   time.Duration // the rematch vote
	WriteTimeout     time.Duration // each outbound message
}

// DefaultConfig returns the standard rules with no timeouts.
func DefaultConfig() Config {
	return Config{Rules: game.DefaultRules()}
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the parent logger; the session derives a child
// prefixed with its short ID.
func WithLogger(l *util.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRegistry attaches a live-match registry.
func WithRegistry(r registry.Registry) Option {
	return func(s *Session) { s.registry = r }
}

// Session is one match between two players.
type Session struct {
	id    string
	conns [game.Players]protocol.Conn
	cfg   Config

	logger   *util.Logger
	metrics  *metrics.Collector
	registry registry.Registry

	state *game.MatchState
	phase atomic.Int32
	round atomic.Int32

	closeOnce sync.Once
}

// New builds a session for the two paired connections.  a becomes
// player 0 and moves first.
func New(a, b protocol.Conn, cfg Config, opts ...Option) (*Session, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("new session: %w", apperr.ErrNotConnected)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("new session: rules: %w", err)
	}

	s := &Session{
		id:       uuid.NewString(),
		conns:    [game.Players]protocol.Conn{a, b},
		cfg:      cfg,
		logger:   util.NewLogger(0),
		registry: registry.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("match " + s.id[:8])
	return s, nil
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.  Safe to call from any goroutine.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Round returns the 1-based number of the round in progress.
func (s *Session) Round() int { return int(s.round.Load()) }

// Run plays rounds until the players decline a rematch or the session
// aborts.  It returns nil on a declined rematch and the abort cause
// otherwise.  Cancelling ctx closes both connections and aborts.
// Both connections are always closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.metrics.SessionStarted()
	s.notifyStarted(ctx)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.closeConns()
		case <-done:
		}
	}()

	err := s.loop(ctx)
	close(done)
	s.closeConns()

	if err != nil && ctx.Err() != nil {
		err = apperr.InPhase(s.Phase().String(), -1, fmt.Errorf("%w: %v", apperr.ErrSessionClosed, ctx.Err()))
	}

	reason := "rematch declined"
	switch {
	case err == nil:
		s.logger.Info("finished after %d round(s)", s.Round())
	case apperr.IsDisconnect(err):
		reason = err.Error()
		s.logger.Info("aborted: %v", err)
	default:
		reason = err.Error()
		s.logger.Warn("aborted: %v", err)
		s.metrics.RecordError(err.Error())
	}
	s.metrics.SessionEnded(err != nil)
	s.notifyEnded(reason)
	return err
}

func (s *Session) loop(ctx context.Context) error {
	for {
		s.round.Add(1)
		s.state = game.NewMatchState(s.cfg.Rules)

		if err := s.handshake(ctx); err != nil {
			return err
		}
		if err := s.placement(ctx); err != nil {
			return err
		}
		if err := s.battle(ctx); err != nil {
			return err
		}

		again, err := s.rematch(ctx)
		if err != nil {
			return err
		}
		if !again {
			s.setPhase(ctx, Terminated)
			return nil
		}
		s.metrics.Rematch()
		s.logger.Info("rematch agreed, starting round %d", s.Round()+1)
	}
}

// ── Phases ───────────────────────────────────────────────────────────

func (s *Session) handshake(ctx context.Context) error {
	s.setPhase(ctx, Handshake)

	if err := s.broadcast(protocol.Welcome{Marker: protocol.WelcomeMarker}); err != nil {
		return err
	}
	for p := 0; p < game.Players; p++ {
		if err := s.send(p, protocol.MatchFound{PlayerID: p}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) battle(ctx context.Context) error {
	s.setPhase(ctx, Battle)

	if err := s.send(0, protocol.TurnMessage{YourTurn: true}); err != nil {
		return err
	}
	if err := s.send(1, protocol.TurnMessage{YourTurn: false}); err != nil {
		return err
	}

	for {
		attacker := s.state.CurrentPlayer()
		defender := game.Opponent(attacker)
		deadline := s.deadline(s.cfg.TurnTimeout)

		var shot protocol.FireRequest
		for {
			m, err := s.read(attacker, deadline)
			if err != nil {
				return err
			}
			if fr, ok := m.(protocol.FireRequest); ok {
				shot = fr
				break
			}
			s.logger.Debug("player %d: ignoring %s while attacking", attacker, m.Type())
		}

		result, err := s.state.Fire(attacker, shot.Position)
		if err != nil {
			return apperr.InPhase(Battle.String(), attacker, err)
		}
		hit := result == game.Hit
		s.metrics.ShotFired(hit)
		s.logger.Debug("player %d fired at %v: %v", attacker, shot.Position, result)

		if err := s.broadcast(protocol.FireResponse{Position: shot.Position, Result: result}); err != nil {
			return err
		}

		if winner, over := s.state.Winner(); over {
			s.setPhase(ctx, GameOver)
			s.metrics.RoundPlayed()
			s.logger.Info("round %d won by player %d", s.Round(), winner)
			s.logger.Debug("final boards:\nplayer 0\n%s\nplayer 1\n%s", s.state.Board(0), s.state.Board(1))
			return s.broadcast(protocol.GameOverMessage{Winner: winner})
		}

		if err := s.send(attacker, protocol.TurnMessage{YourTurn: hit}); err != nil {
			return err
		}
		if err := s.send(defender, protocol.TurnMessage{YourTurn: !hit}); err != nil {
			return err
		}
	}
}

// rematch reads exactly one message from each player, concurrently.
// Only two RematchRequests start another round.  RematchStatus is
// broadcast either way, so a declined vote still sends one frame
// before the session terminates.
func (s *Session) rematch(ctx context.Context) (bool, error) {
	s.setPhase(ctx, RematchDecision)

	votes, err := s.collectVotes(s.deadline(s.cfg.RematchTimeout))
	if err != nil {
		return false, err
	}
	both := votes[0] && votes[1]
	s.logger.Verbose("rematch votes: %v / %v", votes[0], votes[1])

	if err := s.broadcast(protocol.RematchStatus{BothAgreed: both}); err != nil {
		return false, err
	}
	return both, nil
}

// ── I/O helpers ──────────────────────────────────────────────────────

// deadline converts a timeout into an absolute deadline; the zero
// time means none.
func (s *Session) deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// read waits for the next message from player, honouring deadline.
func (s *Session) read(player int, deadline time.Time) (protocol.Message, error) {
	c := s.conns[player]
	if err := c.SetReadDeadline(deadline); err != nil {
		return nil, apperr.InPhase(s.Phase().String(), player, err)
	}
	m, err := c.ReadMessage()
	if err != nil {
		return nil, apperr.InPhase(s.Phase().String(), player, classify(err))
	}
	return m, nil
}

func (s *Session) send(player int, m protocol.Message) error {
	c := s.conns[player]
	if err := c.SetWriteDeadline(s.deadline(s.cfg.WriteTimeout)); err != nil {
		return apperr.InPhase(s.Phase().String(), player, err)
	}
	if err := c.WriteMessage(m); err != nil {
		return apperr.InPhase(s.Phase().String(), player, classify(err))
	}
	return nil
}

func (s *Session) broadcast(m protocol.Message) error {
	for p := 0; p < game.Players; p++ {
		if err := s.send(p, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) closeConns() {
	s.closeOnce.Do(func() {
		for _, c := range s.conns {
			c.Close()
		}
	})
}

// ── Registry ─────────────────────────────────────────────────────────

const registryTimeout = 2 * time.Second

func (s *Session) setPhase(ctx context.Context, p Phase) {
	s.phase.Store(int32(p))
	s.logger.Verbose("round %d: %s", s.Round(), p)

	if ctx.Err() != nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()
	if err := s.registry.PhaseChanged(rctx, s.id, p.String(), s.Round()); err != nil {
		s.logger.Debug("registry: %v", err)
	}
}

func (s *Session) notifyStarted(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()
	m := registry.Match{
		ID:        s.id,
		Players:   [2]string{s.conns[0].RemoteAddr(), s.conns[1].RemoteAddr()},
		Phase:     s.Phase().String(),
		Round:     1,
		StartedAt: time.Now(),
	}
	if err := s.registry.Started(rctx, m); err != nil {
		s.logger.Debug("registry: %v", err)
	}
}

// notifyEnded uses a fresh context: the session's own may already be
// cancelled by shutdown, and the entry should still be removed.
func (s *Session) notifyEnded(reason string) {
	rctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := s.registry.Ended(rctx, s.id, reason); err != nil {
		s.logger.Debug("registry: %v", err)
	}
}
