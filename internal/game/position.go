// Package game holds the naval-combat value model (positions, ships,
// boards) and the per-round MatchState that a session mutates.
//
// Nothing in this package performs I/O or locking.  A MatchState is
// owned by exactly one goroutine at a time.
package game

import "fmt"

// Position is a single grid coordinate.  It is a plain value: compare
// with == and use it directly as a map key.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// NewPosition returns the position (row, col).  Both coordinates must be
// non-negative.
func NewPosition(row, col int) (Position, error) {
	if row < 0 || col < 0 {
		return Position{}, fmt.Errorf("position (%d,%d): row and col must be non-negative", row, col)
	}
	return Position{Row: row, Col: col}, nil
}

// InBounds reports whether p lies on a size×size grid.
func (p Position) InBounds(size int) bool {
	return p.Row >= 0 && p.Row < size && p.Col >= 0 && p.Col < size
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}
