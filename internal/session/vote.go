package session

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"salvo/internal/game"
	"salvo/internal/protocol"
)

// collectVotes reads one message from each player at the same time.
// votes[p] is true iff player p's message was a RematchRequest; any
// other message counts as a refusal.  The first read failure closes
// both connections and is the error returned.
func (s *Session) collectVotes(deadline time.Time) ([game.Players]bool, error) {
	var (
		votes [game.Players]bool
		once  sync.Once
		cause error
	)
	fail := func(err error) {
		once.Do(func() {
			cause = err
			s.closeConns()
		})
	}

	var g errgroup.Group
	for p := 0; p < game.Players; p++ {
		p := p
		g.Go(func() error {
			m, err := s.read(p, deadline)
			if err != nil {
				fail(err)
				return err
			}
			_, votes[p] = m.(protocol.RematchRequest)
			if !votes[p] {
				s.logger.Verbose("player %d declined with %s", p, m.Type())
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return votes, cause
}
