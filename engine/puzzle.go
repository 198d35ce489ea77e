package engine

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/go-playground/validator/v10"
)

// MaxSize bounds the side length of any grid.
const MaxSize = 64

var definitionValidate = validator.New()

// Definition is a puzzle as delivered by a puzzle source: the board size,
// the blocked squares and the clue slots.
type Definition struct {
	Size    int     `json:"size" validate:"gte=1,lte=64"`
	Blocked []Coord `json:"blocked"`
	Entries []Entry `json:"entries" validate:"dive"`
}

// Validate checks field constraints and that every entry starts on the
// board.
func (d *Definition) Validate() error {
	if err := definitionValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	for i, e := range d.Entries {
		if e.StartRow >= d.Size || e.StartCol >= d.Size {
			return fmt.Errorf("%w: entry %d starts at %d,%d outside a %dx%d board",
				ErrInvalidDefinition, i, e.StartRow, e.StartCol, d.Size, d.Size)
		}
		if e.Len() == 0 {
			return fmt.Errorf("%w: entry %d has neither answer nor length", ErrInvalidDefinition, i)
		}
	}
	return nil
}

// PuzzleState is the derived, render-ready view of a puzzle: its numbered
// grid, the entry index and the clue lists per direction.
type PuzzleState struct {
	Grid    Grid           `json:"grid"`
	Across  []IndexedEntry `json:"across"`
	Down    []IndexedEntry `json:"down"`
	Index   Index          `json:"index"`
	entries []Entry
}

// AssemblePuzzleState builds the numbered grid and entry index for def.
func AssemblePuzzleState(def Definition) (PuzzleState, error) {
	g, err := NewGrid(def.Size, def.Blocked)
	if err != nil {
		return PuzzleState{}, err
	}
	return derive(g, def.Entries), nil
}

func derive(g Grid, entries []Entry) PuzzleState {
	g = NumberGrid(g)
	return PuzzleState{
		Grid:    g,
		Across:  clueList(g, entries, Across),
		Down:    clueList(g, entries, Down),
		Index:   BuildEntryIndex(g, entries),
		entries: slices.Clone(entries),
	}
}

// clueList filters entries by direction and orders them by clue number.
// Entries whose start carries no number sort last.
func clueList(g Grid, entries []Entry, d Direction) []IndexedEntry {
	out := make([]IndexedEntry, 0, len(entries))
	for _, e := range entries {
		if e.Direction == d {
			out = append(out, indexEntry(g, e))
		}
	}
	slices.SortStableFunc(out, func(a, b IndexedEntry) int {
		return cmp.Compare(sortNumber(a.Number), sortNumber(b.Number))
	})
	return out
}

func sortNumber(n int) int {
	if n == 0 {
		return math.MaxInt
	}
	return n
}

// Entries returns the entry definitions the state was derived from.
func (p PuzzleState) Entries() []Entry {
	return slices.Clone(p.entries)
}

// WithGrid adopts g as the puzzle's grid. Numbering and the entry index are
// re-derived only when g's geometry differs from the current grid.
func (p PuzzleState) WithGrid(g Grid) PuzzleState {
	if p.Grid.SameGeometry(g) {
		p.Grid = g
		return p
	}
	return derive(g, p.entries)
}

// EntryAt returns the entry the cursor is in, following its direction.
func (p PuzzleState) EntryAt(c Cursor) (IndexedEntry, bool) {
	key, ok := p.Index.CellEntries[c.At()].For(c.Direction)
	if !ok {
		return IndexedEntry{}, false
	}
	ie, ok := p.Index.ByKey[key]
	return ie, ok
}

// ClueView is an entry as a clue list shows it.
type ClueView struct {
	Number int      `json:"number,omitempty"`
	Clue   string   `json:"clue"`
	Key    EntryKey `json:"key"`
	Active bool     `json:"active"`
}

// Clues lists the entries of direction d in clue order, flagging the one the
// cursor is in.
func (p PuzzleState) Clues(d Direction, c Cursor) []ClueView {
	list := p.Across
	if d == Down {
		list = p.Down
	}
	active, hasActive := p.EntryAt(c)
	out := make([]ClueView, len(list))
	for i, e := range list {
		out[i] = ClueView{
			Number: e.Number,
			Clue:   e.Clue,
			Key:    e.Key,
			Active: hasActive && active.Key == e.Key,
		}
	}
	return out
}
