package engine

// Cursor is the selected cell plus the current typing direction.
type Cursor struct {
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Direction Direction `json:"direction"`
}

// DefaultCursor is the cursor of a freshly reset board.
var DefaultCursor = Cursor{Row: 0, Col: 0, Direction: Across}

// At reports the cursor position as a Coord.
func (c Cursor) At() Coord {
	return Coord{Row: c.Row, Col: c.Col}
}

// ValidCursor reports whether c sits on an open cell of g.
func ValidCursor(g Grid, c Cursor) bool {
	return g.IsOpen(c.Row, c.Col)
}

// MoveCursor moves c by (dRow, dCol), clamping each axis to the board. A
// landing on a blocked cell keeps stepping by the same delta until an open
// cell is found. If the edge is reached while still blocked, c is returned
// unchanged.
func MoveCursor(g Grid, c Cursor, dRow, dCol int) Cursor {
	h, w := g.Height(), g.Width()
	if h == 0 || w == 0 {
		return c
	}
	r := clamp(c.Row+dRow, 0, h-1)
	col := clamp(c.Col+dCol, 0, w-1)

	for range max(h, w) {
		if !g.cells[r][col].Blocked {
			break
		}
		nr := clamp(r+dRow, 0, h-1)
		nc := clamp(col+dCol, 0, w-1)
		if nr == r && nc == col {
			break
		}
		r, col = nr, nc
	}
	if g.cells[r][col].Blocked {
		return c
	}
	c.Row, c.Col = r, col
	return c
}

// SetCursorPosition moves c to (row, col). Targets off the board or on a
// blocked cell are ignored. Selecting the cell the cursor already occupies
// toggles the direction instead.
func SetCursorPosition(g Grid, c Cursor, row, col int) Cursor {
	if !g.IsOpen(row, col) {
		return c
	}
	if c.Row == row && c.Col == col {
		c.Direction = c.Direction.Toggle()
		return c
	}
	c.Row, c.Col = row, col
	return c
}

// AdvanceCursor steps one cell forward in the cursor's direction.
func AdvanceCursor(g Grid, c Cursor) Cursor {
	dr, dc := c.Direction.Step()
	return MoveCursor(g, c, dr, dc)
}

// RetreatCursor steps one cell backward in the cursor's direction.
func RetreatCursor(g Grid, c Cursor) Cursor {
	dr, dc := c.Direction.Step()
	return MoveCursor(g, c, -dr, -dc)
}

// ActiveWordCells returns the run of open cells containing the cursor along
// its direction, from the run's first cell to its last. It is empty when the
// cursor is off the board or on a blocked cell.
func ActiveWordCells(g Grid, c Cursor) []Coord {
	if !ValidCursor(g, c) {
		return nil
	}
	dr, dc := c.Direction.Step()
	r, col := c.Row, c.Col
	for g.IsOpen(r-dr, col-dc) {
		r, col = r-dr, col-dc
	}
	var cells []Coord
	for ; g.IsOpen(r, col); r, col = r+dr, col+dc {
		cells = append(cells, Coord{Row: r, Col: col})
	}
	return cells
}
