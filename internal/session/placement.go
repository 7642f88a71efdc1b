package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"salvo/internal/game"
	"salvo/internal/protocol"
)

type requestKind int

const (
	placeShip requestKind = iota
	declareReady
)

// placementRequest travels from a player's reader to the session
// goroutine, which answers on reply.
type placementRequest struct {
	player int
	kind   requestKind
	ship   game.Ship
	reply  chan bool
}

// placement runs one reader per player and applies their requests
// here, on the session goroutine.  It returns once both players have
// declared ready with a complete fleet.
func (s *Session) placement(ctx context.Context) error {
	s.setPhase(ctx, Placement)

	deadline := s.deadline(s.cfg.PlacementTimeout)
	requests := make(chan placementRequest)

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < game.Players; p++ {
		p := p
		g.Go(func() error {
			return s.placementReader(gctx, p, deadline, requests)
		})
	}

	ready := 0
	for ready < game.Players {
		select {
		case req := <-requests:
			switch req.kind {
			case placeShip:
				ok := s.state.PlaceShip(req.player, req.ship)
				s.logger.Debug("player %d placed %v: %v", req.player, req.ship, ok)
				req.reply <- ok
			case declareReady:
				ok := s.state.FleetComplete(req.player)
				if ok {
					ready++
					s.logger.Verbose("player %d ready", req.player)
				} else {
					s.logger.Verbose("player %d: ready ignored, fleet incomplete (%d/%d)",
						req.player, s.state.ShipsPlaced(req.player), s.cfg.Rules.ShipCount())
				}
				req.reply <- ok
			}
		case <-gctx.Done():
			// The first failure is already recorded; closing unblocks
			// the other reader.
			s.closeConns()
			return g.Wait()
		}
	}
	return g.Wait()
}

// placementReader pumps one player's placement messages until that
// player is ready.  Only this goroutine writes to the player's
// connection during placement.
func (s *Session) placementReader(ctx context.Context, player int, deadline time.Time, requests chan<- placementRequest) error {
	ask := func(req placementRequest) (bool, error) {
		req.player = player
		req.reply = make(chan bool, 1)
		select {
		case requests <- req:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return <-req.reply, nil
	}

	for {
		m, err := s.read(player, deadline)
		if err != nil {
			return err
		}

		switch msg := m.(type) {
		case protocol.PlaceShipRequest:
			if msg.PlayerID != player {
				s.logger.Verbose("player %d: place_ship claims player %d, using connection seat", player, msg.PlayerID)
			}
			ok, err := ask(placementRequest{kind: placeShip, ship: msg.Ship})
			if err != nil {
				return err
			}
			if err := s.send(player, protocol.PlaceShipResponse{Success: ok}); err != nil {
				return err
			}

		case protocol.ReadyRequest:
			ok, err := ask(placementRequest{kind: declareReady})
			if err != nil {
				return err
			}
			if ok {
				return nil
			}

		default:
			s.logger.Debug("player %d: ignoring %s during placement", player, m.Type())
		}
	}
}
