package game

import (
	"errors"
	"fmt"
)

// Players is the number of seats in a match.
const Players = 2

var (
	ErrInvalidPlayer = errors.New("player index must be 0 or 1")
	ErrNotYourTurn   = errors.New("not the attacker's turn")
	ErrGameOver      = errors.New("round is already decided")
)

// MatchState is the authoritative state of one round: both boards,
// placement counters, whose turn it is and the outcome.
//
// It is not safe for concurrent use.  The owning session serialises
// every call.
type MatchState struct {
	rules         Rules
	boards        [Players]*Board
	shipsPlaced   [Players]int
	currentPlayer int
	gameOver      bool
	winner        int
}

// NewMatchState returns a fresh round under the given rules.  Player 0
// moves first.
func NewMatchState(rules Rules) *MatchState {
	s := &MatchState{rules: rules}
	s.Reset()
	return s
}

// Reset reinitialises boards, counters, turn and outcome.
func (s *MatchState) Reset() {
	for p := 0; p < Players; p++ {
		s.boards[p] = NewBoard(s.rules.GridSize)
		s.shipsPlaced[p] = 0
	}
	s.currentPlayer = 0
	s.gameOver = false
	s.winner = -1
}

// Rules returns the rules this round is played under.
func (s *MatchState) Rules() Rules { return s.rules }

// PlaceShip puts ship on player's own board.  It fails without side
// effects when the player's fleet is already complete, when the board
// rejects the ship (bounds, overlap, not straight), or when strict
// fleet rules are on and the length is not an unused fleet size.
func (s *MatchState) PlaceShip(player int, ship Ship) bool {
	if !validPlayer(player) {
		return false
	}
	if s.shipsPlaced[player] >= s.rules.ShipCount() {
		return false
	}
	board := s.boards[player]
	if !ship.Fits(board.Size()) {
		return false
	}
	if s.rules.StrictFleet && !s.rules.fleetAllows(board.ships, ship.Len()) {
		return false
	}
	if !board.PlaceShip(ship) {
		return false
	}
	s.shipsPlaced[player]++
	return true
}

// Fire resolves attacker's shot at pos against the opponent's board.
// A miss hands the turn to the opponent; a hit keeps it.  Sinking the
// last defending ship ends the round with attacker as winner.
func (s *MatchState) Fire(attacker int, pos Position) (Cell, error) {
	if !validPlayer(attacker) {
		return Empty, fmt.Errorf("fire: %w (got %d)", ErrInvalidPlayer, attacker)
	}
	if s.gameOver {
		return Empty, fmt.Errorf("fire: %w", ErrGameOver)
	}
	if attacker != s.currentPlayer {
		return Empty, fmt.Errorf("fire: %w (player %d, current %d)", ErrNotYourTurn, attacker, s.currentPlayer)
	}

	defender := Opponent(attacker)
	result := s.boards[defender].Fire(pos)
	if result == Miss {
		s.currentPlayer = defender
	}
	if s.boards[defender].AllSunk() {
		s.gameOver = true
		s.winner = attacker
	}
	return result, nil
}

// SetCurrentPlayer overrides whose turn it is.
func (s *MatchState) SetCurrentPlayer(player int) error {
	if !validPlayer(player) {
		return fmt.Errorf("set current player: %w (got %d)", ErrInvalidPlayer, player)
	}
	s.currentPlayer = player
	return nil
}

// CurrentPlayer is the index of the attacker.
func (s *MatchState) CurrentPlayer() int { return s.currentPlayer }

// GameOver reports whether the round has been decided.
func (s *MatchState) GameOver() bool { return s.gameOver }

// Winner returns the winning player once the round is decided.
func (s *MatchState) Winner() (int, bool) {
	if !s.gameOver {
		return -1, false
	}
	return s.winner, true
}

// ShipsPlaced is the number of ships player has placed this round.
func (s *MatchState) ShipsPlaced(player int) int {
	if !validPlayer(player) {
		return 0
	}
	return s.shipsPlaced[player]
}

// FleetComplete reports whether player has placed the full fleet.
func (s *MatchState) FleetComplete(player int) bool {
	return s.ShipsPlaced(player) >= s.rules.ShipCount()
}

// Board returns player's board, or nil for an invalid index.
func (s *MatchState) Board(player int) *Board {
	if !validPlayer(player) {
		return nil
	}
	return s.boards[player]
}

// Opponent returns the other seat.
func Opponent(player int) int { return 1 - player }

func validPlayer(p int) bool { return p >= 0 && p < Players }
