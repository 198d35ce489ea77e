// Package engine holds the interactive state of a crossword editor: the
// grid snapshot, cursor movement, clue numbering, the entry index and the
// reducer that applies user actions to them.
//
// Every value in this package is a snapshot. Operations return new values
// and never mutate their inputs, so readers holding an older Grid or State
// keep seeing a consistent board.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned when a grid would be empty, ragged or
	// larger than MaxSize on a side.
	ErrInvalidGeometry = errors.New("invalid grid geometry")
	// ErrInvalidChar is returned when external grid data holds something
	// other than a single letter or a marker.
	ErrInvalidChar = errors.New("invalid cell character")
	// ErrDimensionMismatch is returned when external grid data does not
	// match the dimensions of the current grid.
	ErrDimensionMismatch = errors.New("grid dimensions mismatch")
)

// Cell is a single square of the board. A blocked cell never holds a
// character or a clue number. Number is 0 when the cell carries none.
type Cell struct {
	Blocked bool   `json:"blocked,omitempty"`
	Char    string `json:"char,omitempty"`
	Number  int    `json:"number,omitempty"`
}

// Grid is an immutable height x width board.
type Grid struct {
	cells [][]Cell
}

// NewGrid builds an empty size x size grid with the given blocked cells and
// clue numbers applied. Coordinates outside the board are ignored.
func NewGrid(size int, blocked []Coord) (Grid, error) {
	return NewRectGrid(size, size, blocked)
}

// NewRectGrid is NewGrid for non-square boards.
func NewRectGrid(height, width int, blocked []Coord) (Grid, error) {
	if height <= 0 || width <= 0 || height > MaxSize || width > MaxSize {
		return Grid{}, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, height, width)
	}
	cells := make([][]Cell, height)
	for r := range cells {
		cells[r] = make([]Cell, width)
	}
	for _, c := range blocked {
		if c.Row >= 0 && c.Row < height && c.Col >= 0 && c.Col < width {
			cells[c.Row][c.Col].Blocked = true
		}
	}
	return NumberGrid(Grid{cells: cells}), nil
}

// NumberGrid assigns clue numbers in row-major order. A non-blocked cell is
// numbered when it starts an across run (left edge or blocked neighbour to
// the left, open neighbour to the right) or a down run (top edge or blocked
// neighbour above, open neighbour below).
func NumberGrid(g Grid) Grid {
	next := g.clone()
	h, w := g.Height(), g.Width()
	n := 1
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			cell := &next.cells[r][c]
			if cell.Blocked {
				cell.Number = 0
				cell.Char = ""
				continue
			}
			leftClosed := c == 0 || next.cells[r][c-1].Blocked
			upClosed := r == 0 || next.cells[r-1][c].Blocked
			startsAcross := leftClosed && c+1 < w && !next.cells[r][c+1].Blocked
			startsDown := upClosed && r+1 < h && !next.cells[r+1][c].Blocked
			if startsAcross || startsDown {
				cell.Number = n
				n++
			} else {
				cell.Number = 0
			}
		}
	}
	return next
}

func (g Grid) Height() int { return len(g.cells) }

func (g Grid) Width() int {
	if len(g.cells) == 0 {
		return 0
	}
	return len(g.cells[0])
}

// InBounds reports whether (row, col) lies on the board.
func (g Grid) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < g.Height() && col < g.Width()
}

// Cell returns the cell at (row, col). ok is false when out of bounds.
func (g Grid) Cell(row, col int) (Cell, bool) {
	if !g.InBounds(row, col) {
		return Cell{}, false
	}
	return g.cells[row][col], true
}

// IsOpen reports whether (row, col) is in bounds and not blocked.
func (g Grid) IsOpen(row, col int) bool {
	return g.InBounds(row, col) && !g.cells[row][col].Blocked
}

// Blocked lists the blocked coordinates in row-major order.
func (g Grid) Blocked() []Coord {
	var out []Coord
	for r, row := range g.cells {
		for c, cell := range row {
			if cell.Blocked {
				out = append(out, Coord{Row: r, Col: c})
			}
		}
	}
	return out
}

// Rows returns a deep copy of the cell matrix.
func (g Grid) Rows() [][]Cell {
	return g.clone().cells
}

// SameGeometry reports whether both grids have the same size and the same
// blocked cells. Characters are not compared.
func (g Grid) SameGeometry(o Grid) bool {
	if g.Height() != o.Height() || g.Width() != o.Width() {
		return false
	}
	for r, row := range g.cells {
		for c, cell := range row {
			if cell.Blocked != o.cells[r][c].Blocked {
				return false
			}
		}
	}
	return true
}

// WithChar returns a copy of g with the character at (row, col) replaced.
// Blocked or out-of-bounds targets return g unchanged.
func (g Grid) WithChar(row, col int, ch string) Grid {
	if !g.IsOpen(row, col) {
		return g
	}
	next := g.clone()
	next.cells[row][col].Char = ch
	return next
}

// Runs returns every maximal run of at least two open cells in direction d,
// ordered by their starting cell.
func (g Grid) Runs(d Direction) [][]Coord {
	var runs [][]Coord
	dr, dc := d.Step()
	for r := 0; r < g.Height(); r++ {
		for c := 0; c < g.Width(); c++ {
			if !g.IsOpen(r, c) || g.IsOpen(r-dr, c-dc) {
				continue
			}
			var run []Coord
			for rr, cc := r, c; g.IsOpen(rr, cc); rr, cc = rr+dr, cc+dc {
				run = append(run, Coord{Row: rr, Col: cc})
			}
			if len(run) >= 2 {
				runs = append(runs, run)
			}
		}
	}
	return runs
}

func (g Grid) clone() Grid {
	cells := make([][]Cell, len(g.cells))
	for r, row := range g.cells {
		cells[r] = make([]Cell, len(row))
		copy(cells[r], row)
	}
	return Grid{cells: cells}
}

type gridJSON struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Cells [][]Cell `json:"cells"`
}

func (g Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(gridJSON{Rows: g.Height(), Cols: g.Width(), Cells: g.cells})
}

// UnmarshalJSON rejects empty or ragged cell matrices and re-derives clue
// numbers from the blocked layout.
func (g *Grid) UnmarshalJSON(b []byte) error {
	var raw gridJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Cells) == 0 || len(raw.Cells[0]) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidGeometry)
	}
	width := len(raw.Cells[0])
	if len(raw.Cells) > MaxSize || width > MaxSize {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidGeometry, len(raw.Cells), width, MaxSize)
	}
	for r, row := range raw.Cells {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidGeometry, r, len(row), width)
		}
	}
	if (raw.Rows != 0 && raw.Rows != len(raw.Cells)) || (raw.Cols != 0 && raw.Cols != width) {
		return fmt.Errorf("%w: declared %dx%d, got %dx%d", ErrInvalidGeometry, raw.Rows, raw.Cols, len(raw.Cells), width)
	}
	*g = NumberGrid(Grid{cells: raw.Cells})
	return nil
}
