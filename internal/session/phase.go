package session

import (
	"errors"
	"fmt"
	"net"
	"os"

	apperr "salvo/internal/errors"
)

// Phase is a step of the match state machine.
type Phase int32

const (
	Handshake Phase = iota
	Placement
	Battle
	GameOver
	RematchDecision
	Terminated
)

var phaseNames = [...]string{
	"HANDSHAKE",
	"PLACEMENT",
	"BATTLE",
	"GAME_OVER",
	"REMATCH_DECISION",
	"TERMINATED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// classify turns an expired deadline into ErrPhaseTimeout and leaves
// every other error alone.
func classify(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrPhaseTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", apperr.ErrPhaseTimeout, err)
	}
	return err
}
