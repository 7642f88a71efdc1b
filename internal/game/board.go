package game

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"
)

// Cell is the state of one grid square.
type Cell int

const (
	Empty Cell = iota
	ShipCell
	Hit
	Miss
)

var cellNames = [...]string{"EMPTY", "SHIP", "HIT", "MISS"}

func (c Cell) String() string {
	if c < 0 || int(c) >= len(cellNames) {
		return "Cell(" + strconv.Itoa(int(c)) + ")"
	}
	return cellNames[c]
}

// MarshalText encodes the cell as its upper-case name.
func (c Cell) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(cellNames) {
		return nil, fmt.Errorf("invalid cell %d", int(c))
	}
	return []byte(cellNames[c]), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (c *Cell) UnmarshalText(text []byte) error {
	for i, name := range cellNames {
		if string(text) == name {
			*c = Cell(i)
			return nil
		}
	}
	return fmt.Errorf("unknown cell %q", text)
}

// Board is one player's grid plus the ships placed on it.
//
// A cell is ShipCell iff a ship covers it and it has not been fired
// upon.  Once fired upon it is Hit or Miss for good.
type Board struct {
	size  int
	grid  [][]Cell
	ships []Ship
}

// NewBoard returns an empty size×size board.
func NewBoard(size int) *Board {
	grid := make([][]Cell, size)
	for r := range grid {
		grid[r] = make([]Cell, size)
	}
	return &Board{size: size, grid: grid}
}

// Size is the board's edge length.
func (b *Board) Size() int { return b.size }

// PlaceShip adds s when it is straight, fully on the grid and touches
// only empty cells.  On failure the board is left untouched.
func (b *Board) PlaceShip(s Ship) bool {
	if !s.Fits(b.size) {
		return false
	}
	cells := s.Positions()
	for _, p := range cells {
		if b.grid[p.Row][p.Col] != Empty {
			return false
		}
	}
	for _, p := range cells {
		b.grid[p.Row][p.Col] = ShipCell
	}
	b.ships = append(b.ships, s)
	return true
}

// Fire resolves a shot at p.  Off-grid shots are misses that change
// nothing.  A cell that was already resolved reports its existing state
// without mutation.
func (b *Board) Fire(p Position) Cell {
	if !p.InBounds(b.size) {
		return Miss
	}
	switch b.grid[p.Row][p.Col] {
	case Hit:
		return Hit
	case Miss:
		return Miss
	case ShipCell:
		b.grid[p.Row][p.Col] = Hit
		return Hit
	default:
		b.grid[p.Row][p.Col] = Miss
		return Miss
	}
}

// Cell returns the state at p, or Empty when p is off the grid.
func (b *Board) Cell(p Position) Cell {
	if !p.InBounds(b.size) {
		return Empty
	}
	return b.grid[p.Row][p.Col]
}

// AllSunk reports whether every cell of every ship has been hit.  An
// empty board is trivially sunk.
func (b *Board) AllSunk() bool {
	for _, s := range b.ships {
		if !b.Sunk(s) {
			return false
		}
	}
	return true
}

// Sunk reports whether every cell of s is Hit.
func (b *Board) Sunk(s Ship) bool {
	for _, p := range s.Positions() {
		if b.Cell(p) != Hit {
			return false
		}
	}
	return true
}

// Ships returns a copy of the placed ships in placement order.
func (b *Board) Ships() []Ship {
	out := make([]Ship, len(b.ships))
	copy(out, b.ships)
	return out
}

// String renders the grid for debug logs:
// ~ empty, S ship, X hit, o miss.
func (b *Board) String() string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 2, 0, 1, ' ', 0)

	fmt.Fprint(tw, "\t")
	for c := 0; c < b.size; c++ {
		fmt.Fprintf(tw, "%d\t", c)
	}
	fmt.Fprintln(tw)

	for r := 0; r < b.size; r++ {
		fmt.Fprintf(tw, "%d\t", r)
		for c := 0; c < b.size; c++ {
			switch b.grid[r][c] {
			case ShipCell:
				fmt.Fprint(tw, "S\t")
			case Hit:
				fmt.Fprint(tw, "X\t")
			case Miss:
				fmt.Fprint(tw, "o\t")
			default:
				fmt.Fprint(tw, "~\t")
			}
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	return buf.String()
}
