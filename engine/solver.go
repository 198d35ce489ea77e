package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Markers used in solver fills.
const (
	BlockedMark = "#"
	EmptyMark   = " "
	UnknownMark = "?"
)

// Solver response statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// ErrSolverFailed is returned when a solver or generator reports anything
// other than success.
var ErrSolverFailed = errors.New("solver failed")

// FixedCell is a letter the solver must keep. On the wire it is a
// [row, col, "X"] triple.
type FixedCell struct {
	Row  int
	Col  int
	Char string
}

func (f FixedCell) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Row, f.Col, f.Char})
}

func (f *FixedCell) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("fixed cell: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.Row); err != nil {
		return fmt.Errorf("fixed cell row: %w", err)
	}
	if err := json.Unmarshal(raw[1], &f.Col); err != nil {
		return fmt.Errorf("fixed cell col: %w", err)
	}
	if err := json.Unmarshal(raw[2], &f.Char); err != nil {
		return fmt.Errorf("fixed cell char: %w", err)
	}
	return nil
}

// SolveRequest asks a solver to fill a geometry, keeping FixedCells.
type SolveRequest struct {
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	BlackCells [][2]int    `json:"black_cells"`
	FixedCells []FixedCell `json:"fixed_cells"`
	Words      []string    `json:"words,omitempty"`
}

// NewSolveRequest describes s's board: its blocked cells, and every letter
// already typed as a fixed cell.
func NewSolveRequest(s State, words []string) SolveRequest {
	g := s.Grid
	req := SolveRequest{
		Width:      g.Width(),
		Height:     g.Height(),
		BlackCells: [][2]int{},
		FixedCells: []FixedCell{},
		Words:      words,
	}
	for r, row := range g.cells {
		for c, cell := range row {
			switch {
			case cell.Blocked:
				req.BlackCells = append(req.BlackCells, [2]int{r, c})
			case cell.Char != "":
				req.FixedCells = append(req.FixedCells, FixedCell{Row: r, Col: c, Char: cell.Char})
			}
		}
	}
	return req
}

// Blocked returns the request's black cells as coordinates.
func (r SolveRequest) Blocked() []Coord {
	return pairsToCoords(r.BlackCells)
}

// SolveResponse is a solver's answer: a row-major fill using BlockedMark
// and EmptyMark, or a failure message.
type SolveResponse struct {
	Status  string     `json:"status"`
	Grid    [][]string `json:"grid,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Action turns a successful response into the OverwriteGrid that applies it.
func (r SolveResponse) Action() (Action, error) {
	if r.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: %s: %s", ErrSolverFailed, r.Status, r.Message)
	}
	if len(r.Grid) == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrSolverFailed)
	}
	return OverwriteGrid{Data: r.Grid}, nil
}

// GenerateRequest asks a generator for a new blocked-cell layout.
type GenerateRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   uint64 `json:"seed,omitempty"`
}

// GenerateResponse carries a generated geometry.
type GenerateResponse struct {
	Status     string   `json:"status"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	BlackCells [][2]int `json:"black_cells,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Action turns a successful response into the Reset that adopts the layout.
func (r GenerateResponse) Action() (Action, error) {
	if r.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: %s: %s", ErrSolverFailed, r.Status, r.Message)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, r.Height, r.Width)
	}
	return Reset{Rows: r.Height, Cols: r.Width, Blocked: pairsToCoords(r.BlackCells)}, nil
}

func pairsToCoords(pairs [][2]int) []Coord {
	out := make([]Coord, len(pairs))
	for i, p := range pairs {
		out[i] = Coord{Row: p[0], Col: p[1]}
	}
	return out
}
