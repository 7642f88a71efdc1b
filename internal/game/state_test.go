package game

import (
	"errors"
	"math"
	"testing"
)

// fleetA and fleetB are full five-ship fleets.  fleetA has a cruiser on
// (3,3)-(3,5); fleetB leaves (0,0) empty.
func fleetA(t *testing.T) []Ship {
	t.Helper()
	return []Ship{
		mustShip(t, Position{0, 0}, Position{0, 4}),
		mustShip(t, Position{2, 0}, Position{2, 3}),
		mustShip(t, Position{3, 3}, Position{3, 5}),
		mustShip(t, Position{5, 0}, Position{5, 2}),
		mustShip(t, Position{7, 0}, Position{7, 1}),
	}
}

func fleetB(t *testing.T) []Ship {
	t.Helper()
	return []Ship{
		mustShip(t, Position{1, 0}, Position{1, 4}),
		mustShip(t, Position{3, 0}, Position{3, 3}),
		mustShip(t, Position{5, 0}, Position{5, 2}),
		mustShip(t, Position{7, 0}, Position{7, 2}),
		mustShip(t, Position{9, 0}, Position{9, 1}),
	}
}

func placeAll(t *testing.T, s *MatchState, player int, fleet []Ship) {
	t.Helper()
	for _, ship := range fleet {
		if !s.PlaceShip(player, ship) {
			t.Fatalf("player %d: placing %v failed", player, ship)
		}
	}
	if !s.FleetComplete(player) {
		t.Fatalf("player %d: fleet incomplete after %d ships", player, len(fleet))
	}
}

func readyMatch(t *testing.T) *MatchState {
	t.Helper()
	s := NewMatchState(DefaultRules())
	placeAll(t, s, 0, fleetA(t))
	placeAll(t, s, 1, fleetB(t))
	return s
}

// ── Placement ────────────────────────────────────────────────────────

func TestMatchState_PlacementCap(t *testing.T) {
	s := NewMatchState(DefaultRules())
	placeAll(t, s, 0, fleetA(t))

	extra := mustShip(t, Position{9, 9}, Position{9, 9})
	if s.PlaceShip(0, extra) {
		t.Error("sixth ship should be rejected")
	}
	if s.ShipsPlaced(0) != 5 {
		t.Errorf("ShipsPlaced = %d, want 5", s.ShipsPlaced(0))
	}
	if s.Board(0).Cell(Position{9, 9}) != Empty {
		t.Error("rejected ship left a mark")
	}
	if s.ShipsPlaced(1) != 0 {
		t.Error("player 1 counter moved")
	}
}

func TestMatchState_PlacementRejectsLeaveCounter(t *testing.T) {
	s := NewMatchState(DefaultRules())
	if !s.PlaceShip(1, mustShip(t, Position{0, 0}, Position{0, 4})) {
		t.Fatal("first placement")
	}
	tests := []struct {
		name string
		ship Ship
	}{
		{"overlap", mustShip(t, Position{0, 2}, Position{3, 2})},
		{"out of bounds", mustShip(t, Position{0, 8}, Position{0, 11})},
		{"diagonal", Ship{Start: Position{4, 4}, End: Position{6, 6}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.PlaceShip(1, tt.ship) {
				t.Fatal("should be rejected")
			}
			if s.ShipsPlaced(1) != 1 {
				t.Errorf("ShipsPlaced = %d, want 1", s.ShipsPlaced(1))
			}
		})
	}
}

func TestMatchState_InvalidPlayer(t *testing.T) {
	s := NewMatchState(DefaultRules())
	ship := mustShip(t, Position{0, 0}, Position{0, 1})
	for _, p := range []int{-1, 2} {
		if s.PlaceShip(p, ship) {
			t.Errorf("PlaceShip(%d) should fail", p)
		}
		if _, err := s.Fire(p, Position{0, 0}); !errors.Is(err, ErrInvalidPlayer) {
			t.Errorf("Fire(%d) err = %v", p, err)
		}
		if err := s.SetCurrentPlayer(p); !errors.Is(err, ErrInvalidPlayer) {
			t.Errorf("SetCurrentPlayer(%d) err = %v", p, err)
		}
		if s.Board(p) != nil {
			t.Errorf("Board(%d) should be nil", p)
		}
	}
}

func TestMatchState_StrictFleet(t *testing.T) {
	rules := DefaultRules()
	rules.StrictFleet = true
	s := NewMatchState(rules)

	if s.PlaceShip(0, mustShip(t, Position{0, 0}, Position{0, 5})) {
		t.Error("length 6 is not in the fleet")
	}
	if !s.PlaceShip(0, mustShip(t, Position{0, 0}, Position{0, 1})) {
		t.Fatal("destroyer should fit")
	}
	if s.PlaceShip(0, mustShip(t, Position{2, 0}, Position{2, 1})) {
		t.Error("second destroyer should be rejected")
	}
	if !s.PlaceShip(0, mustShip(t, Position{4, 0}, Position{4, 2})) {
		t.Fatal("first cruiser")
	}
	if !s.PlaceShip(0, mustShip(t, Position{6, 0}, Position{6, 2})) {
		t.Fatal("second cruiser")
	}
	if s.PlaceShip(0, mustShip(t, Position{8, 0}, Position{8, 2})) {
		t.Error("third cruiser should be rejected")
	}
}

func TestMatchState_LenientFleetAcceptsAnyLength(t *testing.T) {
	s := NewMatchState(DefaultRules())
	for r := 0; r < 5; r++ {
		if !s.PlaceShip(0, mustShip(t, Position{r * 2, 0}, Position{r * 2, 0})) {
			t.Fatalf("single-cell ship on row %d rejected", r*2)
		}
	}
	if !s.FleetComplete(0) {
		t.Error("five ships of any length complete the fleet")
	}
}

// ── Battle ───────────────────────────────────────────────────────────

// TestMatchState_TurnAlternation checks that the turn flips iff the
// shot missed.
func TestMatchState_TurnAlternation(t *testing.T) {
	s := readyMatch(t)

	shots := []struct {
		attacker int
		pos      Position
		want     Cell
		next     int
	}{
		{0, Position{0, 0}, Miss, 1},
		{1, Position{0, 0}, Hit, 1},
		{1, Position{0, 1}, Hit, 1},
		{1, Position{9, 9}, Miss, 0},
		{0, Position{1, 0}, Hit, 0},
		{0, Position{1, 0}, Hit, 0},
		{0, Position{0, 0}, Miss, 1},
		{1, Position{-1, 4}, Miss, 0},
	}
	for i, sh := range shots {
		got, err := s.Fire(sh.attacker, sh.pos)
		if err != nil {
			t.Fatalf("shot %d: %v", i, err)
		}
		if got != sh.want {
			t.Errorf("shot %d at %v: got %v, want %v", i, sh.pos, got, sh.want)
		}
		if s.CurrentPlayer() != sh.next {
			t.Errorf("shot %d: current = %d, want %d", i, s.CurrentPlayer(), sh.next)
		}
	}
}

func TestMatchState_NotYourTurn(t *testing.T) {
	s := readyMatch(t)
	before := s.Board(0).String()

	if _, err := s.Fire(1, Position{0, 0}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	if s.Board(0).String() != before {
		t.Error("rejected shot mutated the board")
	}
	if s.CurrentPlayer() != 0 {
		t.Error("rejected shot changed the turn")
	}
}

// TestMatchState_Scenario replays a short exchange: a miss on an empty
// cell, then three hits that sink a cruiser without ending the round.
func TestMatchState_Scenario(t *testing.T) {
	s := readyMatch(t)

	if got, _ := s.Fire(0, Position{0, 0}); got != Miss {
		t.Fatalf("P0 at (0,0): %v, want MISS", got)
	}
	if s.CurrentPlayer() != 1 {
		t.Fatal("turn should pass to player 1")
	}

	cruiser := mustShip(t, Position{3, 3}, Position{3, 5})
	for _, p := range cruiser.Positions() {
		got, err := s.Fire(1, p)
		if err != nil {
			t.Fatal(err)
		}
		if got != Hit {
			t.Errorf("P1 at %v: %v, want HIT", p, got)
		}
		if s.CurrentPlayer() != 1 {
			t.Errorf("hit at %v lost the turn", p)
		}
	}
	if !s.Board(0).Sunk(cruiser) {
		t.Error("cruiser should be sunk")
	}
	if s.GameOver() {
		t.Error("four ships still afloat")
	}
	if _, ok := s.Winner(); ok {
		t.Error("no winner yet")
	}
}

func TestMatchState_WinDetection(t *testing.T) {
	s := readyMatch(t)

	// Hand the turn to player 1 and let them sink all of fleetA.
	if _, err := s.Fire(0, Position{0, 0}); err != nil {
		t.Fatal(err)
	}
	var last Cell
	for _, ship := range fleetA(t) {
		for _, p := range ship.Positions() {
			var err error
			last, err = s.Fire(1, p)
			if err != nil {
				t.Fatalf("at %v: %v", p, err)
			}
		}
	}
	if last != Hit {
		t.Errorf("final shot = %v, want HIT", last)
	}
	if !s.GameOver() {
		t.Fatal("round should be over")
	}
	w, ok := s.Winner()
	if !ok || w != 1 {
		t.Errorf("winner = %d (%v), want 1", w, ok)
	}
	if _, err := s.Fire(1, Position{9, 9}); !errors.Is(err, ErrGameOver) {
		t.Errorf("fire after game over: err = %v", err)
	}
}

func TestMatchState_SingleShipWin(t *testing.T) {
	s := NewMatchState(Rules{GridSize: 5, ShipSizes: []int{2}})
	s.PlaceShip(0, mustShip(t, Position{0, 0}, Position{0, 1}))
	s.PlaceShip(1, mustShip(t, Position{4, 3}, Position{4, 4}))

	s.Fire(0, Position{4, 3})
	if s.GameOver() {
		t.Fatal("half-sunk ship ended the round")
	}
	s.Fire(0, Position{4, 4})
	if w, ok := s.Winner(); !ok || w != 0 {
		t.Errorf("winner = %d (%v), want 0", w, ok)
	}
}

func TestMatchState_SetCurrentPlayer(t *testing.T) {
	s := readyMatch(t)
	if err := s.SetCurrentPlayer(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fire(0, Position{5, 5}); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("player 0 fired out of turn: %v", err)
	}
	if _, err := s.Fire(1, Position{5, 5}); err != nil {
		t.Errorf("player 1: %v", err)
	}
}

func TestMatchState_Reset(t *testing.T) {
	s := readyMatch(t)
	s.Fire(0, Position{0, 0})
	s.Reset()

	for p := 0; p < Players; p++ {
		if s.ShipsPlaced(p) != 0 {
			t.Errorf("player %d ShipsPlaced = %d", p, s.ShipsPlaced(p))
		}
		if n := len(s.Board(p).Ships()); n != 0 {
			t.Errorf("player %d board has %d ships", p, n)
		}
	}
	if s.CurrentPlayer() != 0 || s.GameOver() {
		t.Error("turn and outcome should reset")
	}
	if _, ok := s.Winner(); ok {
		t.Error("winner should reset")
	}
	placeAll(t, s, 0, fleetA(t))
}

func TestOpponent(t *testing.T) {
	if Opponent(0) != 1 || Opponent(1) != 0 {
		t.Error("Opponent should swap seats")
	}
}

func TestRules_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rules   Rules
		wantErr bool
	}{
		{"default", DefaultRules(), false},
		{"zero grid", Rules{GridSize: 0, ShipSizes: []int{2}}, true},
		{"no ships", Rules{GridSize: 10}, true},
		{"ship too long", Rules{GridSize: 4, ShipSizes: []int{5}}, true},
		{"zero-length ship", Rules{GridSize: 4, ShipSizes: []int{0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rules.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchState_RejectsOverflowingShips(t *testing.T) {
	for _, strict := range []bool{false, true} {
		rules := DefaultRules()
		rules.StrictFleet = strict
		s := NewMatchState(rules)

		for _, end := range []Position{{0, math.MinInt}, {math.MinInt, 0}, {0, math.MaxInt}, {math.MaxInt / 8, 0}} {
			if s.PlaceShip(0, Ship{Start: Position{0, 0}, End: end}) {
				t.Errorf("strict=%v: ship to %v accepted", strict, end)
			}
		}
		if got := s.Board(0).Cell(Position{0, 0}); got != Empty {
			t.Errorf("strict=%v: (0,0) = %v after rejected ships", strict, got)
		}
		if s.ShipsPlaced(0) != 0 {
			t.Errorf("strict=%v: placed = %d", strict, s.ShipsPlaced(0))
		}
	}
}
