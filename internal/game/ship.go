package game

import (
	"errors"
	"fmt"
)

// ErrNotStraight is returned for a ship whose ends share neither a row
// nor a column.
var ErrNotStraight = errors.New("ship must be horizontal or vertical")

// Ship is a straight run of cells from Start to End, both inclusive.
// Start may come after End; Positions always walks Start → End.
type Ship struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NewShip builds a ship between two co-linear positions.
func NewShip(start, end Position) (Ship, error) {
	s := Ship{Start: start, End: end}
	if err := s.Validate(); err != nil {
		return Ship{}, err
	}
	return s, nil
}

// Horizontal returns a ship of the given length starting at start and
// extending to the right.
func Horizontal(start Position, length int) (Ship, error) {
	if length < 1 {
		return Ship{}, fmt.Errorf("ship length %d: must be at least 1", length)
	}
	return NewShip(start, Position{Row: start.Row, Col: start.Col + length - 1})
}

// Vertical returns a ship of the given length starting at start and
// extending downwards.
func Vertical(start Position, length int) (Ship, error) {
	if length < 1 {
		return Ship{}, fmt.Errorf("ship length %d: must be at least 1", length)
	}
	return NewShip(start, Position{Row: start.Row + length - 1, Col: start.Col})
}

// Validate re-checks the co-linearity invariant.  Ships decoded from
// the wire bypass NewShip, so the board calls this before accepting one.
func (s Ship) Validate() error {
	if s.Start.Row != s.End.Row && s.Start.Col != s.End.Col {
		return fmt.Errorf("%w: %v → %v", ErrNotStraight, s.Start, s.End)
	}
	return nil
}

// Fits reports whether s is straight and both of its ends lie on a
// size×size grid.  Ships decoded from the wire carry arbitrary ints, so
// Len and Positions are only meaningful once Fits holds.
func (s Ship) Fits(size int) bool {
	return s.Validate() == nil && s.Start.InBounds(size) && s.End.InBounds(size)
}

// Positions returns every cell of the ship in order from Start to End.
func (s Ship) Positions() []Position {
	dr := sign(s.End.Row - s.Start.Row)
	dc := sign(s.End.Col - s.Start.Col)
	n := s.Len()

	out := make([]Position, 0, n)
	r, c := s.Start.Row, s.Start.Col
	for i := 0; i < n; i++ {
		out = append(out, Position{Row: r, Col: c})
		r += dr
		c += dc
	}
	return out
}

// Len is the number of cells the ship covers.
func (s Ship) Len() int {
	return max(abs(s.End.Row-s.Start.Row), abs(s.End.Col-s.Start.Col)) + 1
}

func (s Ship) String() string {
	return fmt.Sprintf("%v→%v", s.Start, s.End)
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
