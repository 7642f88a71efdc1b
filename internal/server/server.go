// Package server assembles a running salvo process from a Config: the
// lobby, the framed TCP listener, the optional HTTP/WebSocket listener,
// the optional SSH exposure and the live-match registry.  Everything
// runs under one errgroup; the first fatal error stops the rest.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"salvo/config"
	apperr "salvo/internal/errors"
	"salvo/internal/game"
	"salvo/internal/lobby"
	"salvo/internal/metrics"
	"salvo/internal/protocol"
	"salvo/internal/registry"
	"salvo/internal/session"
	"salvo/internal/transport"
	"salvo/tunnel"
	"salvo/util"
)

// Server is one configured salvo process.
type Server struct {
	cfg     *config.Config
	logger  *util.Logger
	metrics *metrics.Collector

	registry registry.Registry
	lobby    *lobby.Lobby

	ready    chan struct{}
	mu       sync.Mutex
	tcpAddr  net.Addr
	httpAddr net.Addr
}

// New prepares a server.  No sockets are opened until Run.
func New(cfg *config.Config, logger *util.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		registry: registry.Nop{},
		ready:    make(chan struct{}),
	}
	s.lobby = lobby.New(s.newMatch, lobby.WithLogger(logger), lobby.WithMetrics(s.metrics))
	return s
}

// Metrics returns the server's collector.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// SessionConfig derives the per-match parameters from the Config.
func (s *Server) SessionConfig() session.Config {
	rules := game.DefaultRules()
	rules.StrictFleet = s.cfg.StrictFleet
	return session.Config{
		Rules:            rules,
		PlacementTimeout: s.cfg.PlacementTimeout,
		TurnTimeout:      s.cfg.TurnTimeout,
		RematchTimeout:   s.cfg.RematchTimeout,
		WriteTimeout:     s.cfg.WriteTimeout,
	}
}

func (s *Server) newMatch(a, b protocol.Conn) (lobby.Runner, error) {
	return session.New(a, b, s.SessionConfig(),
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
		session.WithRegistry(s.registry),
	)
}

// Ready is closed once every listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound TCP address (valid after Ready).
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpAddr
}

// HTTPAddr returns the bound HTTP address, or nil when HTTP is off.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// Run binds the listeners and serves until ctx is done or one of them
// fails.  A listener failure is returned; shutdown by ctx returns nil.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.RedisURL != "" {
		r, err := registry.Connect(ctx, s.cfg.RedisURL, s.cfg.RegistryTTL, s.logger)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		s.registry = r
		defer r.Close()
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return apperr.Wrap("listen", s.cfg.ListenAddr(), err)
	}

	var httpLn net.Listener
	if addr := s.cfg.HTTPAddr(); addr != "" {
		httpLn, err = net.Listen("tcp", addr)
		if err != nil {
			ln.Close()
			return apperr.Wrap("listen", addr, err)
		}
	}

	var exposed *tunnel.Listener
	if s.cfg.ExposeEnabled {
		exposed, err = tunnel.Expose(ctx, s.exposeConfig(), s.logger, s.metrics)
		if err != nil {
			ln.Close()
			if httpLn != nil {
				httpLn.Close()
			}
			return fmt.Errorf("expose: %w", err)
		}
	}

	s.mu.Lock()
	s.tcpAddr = ln.Addr()
	if httpLn != nil {
		s.httpAddr = httpLn.Addr()
	}
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("listening on %s (tcp)", ln.Addr())
	if httpLn != nil {
		s.logger.Info("listening on %s (http, websocket at /ws)", httpLn.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	frames := transport.Framed(s.cfg.MaxFrame)

	g.Go(func() error { return s.lobby.Run(gctx) })
	g.Go(func() error { return s.lobby.Serve(gctx, ln, frames) })

	if httpLn != nil {
		srv := &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
				return apperr.Wrap("serve", httpLn.Addr().String(), err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), config.DefaultGracePeriod)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if exposed != nil {
		g.Go(func() error { return s.lobby.Serve(gctx, exposed, frames) })
	}

	if r, ok := s.registry.(*registry.Redis); ok {
		g.Go(func() error {
			s.watchEvents(gctx, r)
			return nil
		})
	}

	err = g.Wait()
	s.logger.Verbose("shut down: %s", s.metrics.JSON())
	return err
}

func (s *Server) exposeConfig() *tunnel.ExposeConfig {
	return &tunnel.ExposeConfig{
		SSH: &tunnel.SSHConfig{
			User:          s.cfg.ExposeUser,
			Host:          s.cfg.ExposeHost,
			Port:          s.cfg.ExposePort,
			KeyPath:       s.cfg.SSHKeyPath,
			PromptPass:    s.cfg.SSHPassword,
			UseAgent:      s.cfg.UseSSHAgent,
			StrictHostKey: s.cfg.StrictHostKey,
			KnownHosts:    s.cfg.KnownHostsPath,
			ConnTimeout:   config.DefaultConnTimeout,
		},
		RemoteBindAddress: s.cfg.RemoteBindAddress,
		RemotePort:        s.cfg.RemotePort,
		KeepAliveInterval: time.Duration(s.cfg.KeepAliveInterval) * time.Second,
		AutoReconnect:     s.cfg.AutoReconnect,
	}
}

// watchEvents logs registry events, including those of other servers
// sharing the same Redis.
func (s *Server) watchEvents(ctx context.Context, r *registry.Redis) {
	events, err := r.Subscribe(ctx)
	if err != nil {
		s.logger.Warn("registry events: %v", err)
		return
	}
	for ev := range events {
		switch ev.Kind {
		case registry.EventPhase:
			s.logger.Debug("event: match %s round %d %s", ev.MatchID, ev.Round, ev.Phase)
		case registry.EventEnded:
			s.logger.Debug("event: match %s ended (%s)", ev.MatchID, ev.Reason)
		default:
			s.logger.Debug("event: match %s %s", ev.MatchID, ev.Kind)
		}
	}
}
