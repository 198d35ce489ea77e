package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrCursorInvariant is returned when a transition would leave the
	// cursor off the board or on a blocked cell.
	ErrCursorInvariant = errors.New("cursor must rest on an open cell")
	// ErrInvalidDefinition is returned for puzzle definitions that fail
	// validation.
	ErrInvalidDefinition = errors.New("invalid puzzle definition")
)

// State is the single mutable unit of the editor: a grid and a cursor.
type State struct {
	Grid   Grid   `json:"grid"`
	Cursor Cursor `json:"cursor"`
}

// NewState returns an empty size x size board with the default cursor.
func NewState(size int, blocked []Coord) (State, error) {
	g, err := NewGrid(size, blocked)
	if err != nil {
		return State{}, err
	}
	return State{Grid: g, Cursor: firstOpen(g)}, nil
}

// StateFor wraps an existing grid with a cursor on its first open cell. It
// fails with ErrCursorInvariant when every cell is blocked.
func StateFor(g Grid) (State, error) {
	s := State{Grid: g, Cursor: firstOpen(g)}
	if !ValidCursor(g, s.Cursor) {
		return State{}, ErrCursorInvariant
	}
	return s, nil
}

// firstOpen is DefaultCursor, moved forward row-major when (0,0) is blocked.
func firstOpen(g Grid) Cursor {
	c := DefaultCursor
	for r := 0; r < g.Height(); r++ {
		for col := 0; col < g.Width(); col++ {
			if g.IsOpen(r, col) {
				c.Row, c.Col = r, col
				return c
			}
		}
	}
	return c
}

// ActiveWord returns the cells highlighted for the cursor's current run.
func (s State) ActiveWord() []Coord {
	return ActiveWordCells(s.Grid, s.Cursor)
}

// Action is one user intent. The set of actions is closed: only the types
// declared in this package implement it.
type Action interface {
	apply(State) (State, error)
}

// Reduce applies a to s and returns the next state. s is never modified. If
// a fails, or would leave the cursor on a blocked or off-board cell, s is
// returned along with the error.
func Reduce(s State, a Action) (State, error) {
	if a == nil {
		return s, ErrUnknownAction
	}
	next, err := a.apply(s)
	if err != nil {
		return s, err
	}
	if !ValidCursor(next.Grid, next.Cursor) {
		return s, fmt.Errorf("%w: %s at %d,%d", ErrCursorInvariant, ActionName(a), next.Cursor.Row, next.Cursor.Col)
	}
	return next, nil
}

// TypeChar writes the first character of Char, uppercased, at the cursor and
// advances. An empty Char clears the cell and keeps the cursor in place.
type TypeChar struct {
	Char string `json:"char"`
}

func (a TypeChar) apply(s State) (State, error) {
	if !ValidCursor(s.Grid, s.Cursor) {
		return s, nil
	}
	ch := ""
	if r, size := utf8.DecodeRuneInString(a.Char); size > 0 {
		ch = strings.ToUpper(string(r))
	}
	s.Grid = s.Grid.WithChar(s.Cursor.Row, s.Cursor.Col, ch)
	if ch != "" {
		s.Cursor = AdvanceCursor(s.Grid, s.Cursor)
	}
	return s, nil
}

// Backspace clears the cell under the cursor, or, when it is already empty,
// steps back one cell and clears that one.
type Backspace struct{}

func (Backspace) apply(s State) (State, error) {
	cell, ok := s.Grid.Cell(s.Cursor.Row, s.Cursor.Col)
	if !ok || cell.Blocked {
		return s, nil
	}
	if cell.Char == "" {
		s.Cursor = RetreatCursor(s.Grid, s.Cursor)
	}
	s.Grid = s.Grid.WithChar(s.Cursor.Row, s.Cursor.Col, "")
	return s, nil
}

// Move shifts the cursor by a delta, see MoveCursor.
type Move struct {
	DRow int `json:"d_row"`
	DCol int `json:"d_col"`
}

func (a Move) apply(s State) (State, error) {
	s.Cursor = MoveCursor(s.Grid, s.Cursor, a.DRow, a.DCol)
	return s, nil
}

// SetCursor places the cursor. With an explicit Direction both position and
// direction are set, as when a clue is picked from a list; targets that are
// blocked or off the board are ignored. Without one it behaves like a click
// on the cell, see SetCursorPosition.
type SetCursor struct {
	Row       int        `json:"row"`
	Col       int        `json:"col"`
	Direction *Direction `json:"direction,omitempty"`
}

func (a SetCursor) apply(s State) (State, error) {
	if a.Direction == nil {
		s.Cursor = SetCursorPosition(s.Grid, s.Cursor, a.Row, a.Col)
		return s, nil
	}
	if !s.Grid.IsOpen(a.Row, a.Col) {
		return s, nil
	}
	s.Cursor = Cursor{Row: a.Row, Col: a.Col, Direction: *a.Direction}
	return s, nil
}

// ToggleDirection flips the cursor between across and down.
type ToggleDirection struct{}

func (ToggleDirection) apply(s State) (State, error) {
	s.Cursor.Direction = s.Cursor.Direction.Toggle()
	return s, nil
}

// Reset replaces the whole state with an empty board of the given geometry.
// Cols defaults to Rows for square boards.
type Reset struct {
	Rows    int     `json:"rows"`
	Cols    int     `json:"cols,omitempty"`
	Blocked []Coord `json:"blocked"`
}

func (a Reset) apply(State) (State, error) {
	cols := a.Cols
	if cols == 0 {
		cols = a.Rows
	}
	g, err := NewRectGrid(a.Rows, cols, a.Blocked)
	if err != nil {
		return State{}, err
	}
	return State{Grid: g, Cursor: firstOpen(g)}, nil
}

// OverwriteGrid copies characters from row-major external data, such as a
// solver's fill, into the open cells. BlockedMark leaves a cell untouched and
// "" or EmptyMark clears it. A single letter is upper-cased; any other value
// fails with ErrInvalidChar. Data whose shape differs from the grid is
// rejected with ErrDimensionMismatch.
type OverwriteGrid struct {
	Data [][]string `json:"data"`
}

func (a OverwriteGrid) apply(s State) (State, error) {
	h, w := s.Grid.Height(), s.Grid.Width()
	if len(a.Data) != h {
		return s, fmt.Errorf("%w: %d rows, grid has %d", ErrDimensionMismatch, len(a.Data), h)
	}
	for r, row := range a.Data {
		if len(row) != w {
			return s, fmt.Errorf("%w: row %d has %d columns, grid has %d", ErrDimensionMismatch, r, len(row), w)
		}
	}
	next := s.Grid.clone()
	for r, row := range a.Data {
		for c, v := range row {
			cell := &next.cells[r][c]
			if cell.Blocked || v == BlockedMark {
				continue
			}
			ch, err := dataChar(v)
			if err != nil {
				return s, fmt.Errorf("%w: %q at %d,%d", err, v, r, c)
			}
			cell.Char = ch
		}
	}
	s.Grid = next
	return s, nil
}

// dataChar normalizes one cell of external grid data.
func dataChar(v string) (string, error) {
	if v == "" || v == EmptyMark {
		return "", nil
	}
	r, size := utf8.DecodeRuneInString(v)
	if size != len(v) || !unicode.IsLetter(r) {
		return "", ErrInvalidChar
	}
	return string(unicode.ToUpper(r)), nil
}
