package game

import "fmt"

// Default match parameters.
const (
	DefaultGridSize = 10
)

// DefaultShipSizes is the standard fleet: carrier, battleship, two
// cruisers and a destroyer.
var DefaultShipSizes = []int{5, 4, 3, 3, 2} //nolint:gochecknoglobals

// Rules fixes the shape of a match.  The zero value is not usable;
// start from DefaultRules.
type Rules struct {
	GridSize  int
	ShipSizes []int

	// StrictFleet requires every placed ship to match a fleet size the
	// player has not used yet.  When false only the ship count is
	// enforced.
	StrictFleet bool
}

// DefaultRules returns a 10×10 grid with the standard five-ship fleet.
func DefaultRules() Rules {
	sizes := make([]int, len(DefaultShipSizes))
	copy(sizes, DefaultShipSizes)
	return Rules{GridSize: DefaultGridSize, ShipSizes: sizes}
}

// ShipCount is how many ships each player must place.
func (r Rules) ShipCount() int { return len(r.ShipSizes) }

// Validate checks that the grid is non-empty and that every ship size
// fits on it.
func (r Rules) Validate() error {
	if r.GridSize < 1 {
		return fmt.Errorf("grid size %d: must be positive", r.GridSize)
	}
	if len(r.ShipSizes) == 0 {
		return fmt.Errorf("fleet is empty")
	}
	for _, n := range r.ShipSizes {
		if n < 1 || n > r.GridSize {
			return fmt.Errorf("ship size %d: must be between 1 and %d", n, r.GridSize)
		}
	}
	return nil
}

// fleetAllows reports whether a ship of length n still fits the fleet
// given the lengths already placed.
func (r Rules) fleetAllows(placed []Ship, n int) bool {
	remaining := make(map[int]int, len(r.ShipSizes))
	for _, size := range r.ShipSizes {
		remaining[size]++
	}
	for _, s := range placed {
		remaining[s.Len()]--
	}
	return remaining[n] > 0
}
