package grid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Empty marks an unoccupied slot.
const Empty = ""

// MaxRows is the number of addressable row letters.
const MaxRows = 26

var (
	// ErrInvalidDimensions is returned when the grid is created with rows or columns below one.
	ErrInvalidDimensions = errors.New("grid dimensions must be positive")
	// ErrInvalidKeyFormat indicates the selection key does not match [a-z][1-9]+.
	ErrInvalidKeyFormat = errors.New("selection key is in the incorrect format")
	// ErrOutOfBounds indicates the key addresses a slot outside the grid.
	ErrOutOfBounds = errors.New("selection key is out of the bounds of the grid")
	// ErrItemNotFound indicates no slot holds the requested item.
	ErrItemNotFound = errors.New("item could not be found")
)

var keyPattern = regexp.MustCompile(`^[a-z][1-9]+$`)

// Position addresses a slot by zero-based row and column.
type Position struct {
	Row    int
	Column int
}

// Key renders the position as a selection key, e.g. {1,2} -> "b3".
func (p Position) Key() string {
	return string(rune('a'+p.Row)) + strconv.Itoa(p.Column+1)
}

// Slot is a snapshot of one grid cell.
type Slot struct {
	Position
	Occupant string
}

// Grid is a fixed-size table of slots addressed by alphanumeric keys.
type Grid struct {
	rows    int
	columns int
	cells   []string
}

// New allocates an empty grid.
func New(rows, columns int) (*Grid, error) {
	if rows < 1 || columns < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, rows, columns)
	}
	if rows > MaxRows {
		return nil, fmt.Errorf("%w: at most %d rows", ErrInvalidDimensions, MaxRows)
	}
	return &Grid{rows: rows, columns: columns, cells: make([]string, rows*columns)}, nil
}

// MustNew behaves like New but panics on invalid dimensions.
func MustNew(rows, columns int) *Grid {
	g, err := New(rows, columns)
	if err != nil {
		panic(err)
	}
	return g
}

// Rows returns the row count.
func (g *Grid) Rows() int { return g.rows }

// Columns returns the column count.
func (g *Grid) Columns() int { return g.columns }

// Load fills slots row-major from a1. Items beyond the grid capacity are
// dropped and their count returned. Slots past the last item keep their
// previous occupant.
func (g *Grid) Load(names []string) (dropped int) {
	for i, name := range names {
		if i >= len(g.cells) {
			return len(names) - len(g.cells)
		}
		g.cells[i] = name
	}
	return 0
}

// ParseKey decodes a selection key without checking it against grid bounds.
func ParseKey(key string) (Position, error) {
	if !keyPattern.MatchString(key) {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidKeyFormat, key)
	}
	col, err := strconv.Atoi(key[1:])
	if err != nil {
		// digits only, so this is an overflow
		return Position{}, fmt.Errorf("%w: %q", ErrOutOfBounds, key)
	}
	return Position{Row: int(key[0] - 'a'), Column: col - 1}, nil
}

// Resolve returns the occupant addressed by key, which may be Empty.
func (g *Grid) Resolve(key string) (string, error) {
	pos, err := ParseKey(key)
	if err != nil {
		return Empty, err
	}
	if !g.contains(pos) {
		return Empty, fmt.Errorf("%w: %q on %dx%d grid", ErrOutOfBounds, key, g.rows, g.columns)
	}
	return g.cells[g.index(pos)], nil
}

// At returns the occupant at pos.
func (g *Grid) At(pos Position) (string, error) {
	if !g.contains(pos) {
		return Empty, ErrOutOfBounds
	}
	return g.cells[g.index(pos)], nil
}

// Find returns the first row-major position holding name.
func (g *Grid) Find(name string) (Position, bool) {
	if name == Empty {
		return Position{}, false
	}
	for i, occupant := range g.cells {
		if occupant == name {
			return g.position(i), true
		}
	}
	return Position{}, false
}

// Remove clears the first slot holding name.
func (g *Grid) Remove(name string) (Position, error) {
	pos, ok := g.Find(name)
	if !ok {
		return Position{}, fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	g.cells[g.index(pos)] = Empty
	return pos, nil
}

// Slots returns a row-major snapshot of every slot.
func (g *Grid) Slots() []Slot {
	out := make([]Slot, len(g.cells))
	for i, occupant := range g.cells {
		out[i] = Slot{Position: g.position(i), Occupant: occupant}
	}
	return out
}

func (g *Grid) contains(pos Position) bool {
	return pos.Row >= 0 && pos.Column >= 0 && pos.Row < g.rows && pos.Column < g.columns
}

func (g *Grid) index(pos Position) int { return pos.Row*g.columns + pos.Column }

func (g *Grid) position(i int) Position {
	return Position{Row: i / g.columns, Column: i % g.columns}
}
