package engine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Entry is a clue slot as supplied by a puzzle definition. The slot length
// is the answer's length when an answer is given, Length otherwise.
type Entry struct {
	Direction Direction `json:"direction"`
	StartRow  int       `json:"start_row" validate:"gte=0"`
	StartCol  int       `json:"start_col" validate:"gte=0"`
	Clue      string    `json:"clue"`
	Answer    string    `json:"answer,omitempty" validate:"omitempty,uppercase,alpha"`
	Length    int       `json:"length,omitempty" validate:"gte=0"`
}

// Len returns the number of cells the entry claims.
func (e Entry) Len() int {
	if e.Answer != "" {
		return utf8.RuneCountInString(e.Answer)
	}
	return e.Length
}

// Key returns the entry's identity: its start cell and direction.
func (e Entry) Key() EntryKey {
	return EntryKey{Row: e.StartRow, Col: e.StartCol, Direction: e.Direction}
}

// EntryKey identifies an entry. Its text form is "row,col,direction".
type EntryKey struct {
	Row       int
	Col       int
	Direction Direction
}

func (k EntryKey) String() string {
	return strconv.Itoa(k.Row) + "," + strconv.Itoa(k.Col) + "," + k.Direction.String()
}

// ParseEntryKey parses the "row,col,direction" form.
func ParseEntryKey(s string) (EntryKey, error) {
	i := strings.LastIndexByte(s, ',')
	if i < 0 {
		return EntryKey{}, fmt.Errorf("entry key %q: expected row,col,direction", s)
	}
	at, err := ParseCoord(s[:i])
	if err != nil {
		return EntryKey{}, fmt.Errorf("entry key %q: %w", s, err)
	}
	d, err := ParseDirection(s[i+1:])
	if err != nil {
		return EntryKey{}, fmt.Errorf("entry key %q: %w", s, err)
	}
	return EntryKey{Row: at.Row, Col: at.Col, Direction: d}, nil
}

func (k EntryKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EntryKey) UnmarshalText(b []byte) error {
	v, err := ParseEntryKey(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// EntryCell is one square of an entry; Offset is its index within the entry.
type EntryCell struct {
	Row    int `json:"row"`
	Col    int `json:"col"`
	Offset int `json:"offset"`
}

// IndexedEntry is an Entry with the attributes derived from a numbered grid.
type IndexedEntry struct {
	Entry
	Number int         `json:"number,omitempty"`
	Key    EntryKey    `json:"key"`
	Cells  []EntryCell `json:"cells"`
}

// CellEntries names the across and down entries crossing a cell.
type CellEntries struct {
	Across *EntryKey `json:"across,omitempty"`
	Down   *EntryKey `json:"down,omitempty"`
}

// For returns the key recorded for direction d.
func (ce CellEntries) For(d Direction) (EntryKey, bool) {
	k := ce.Across
	if d == Down {
		k = ce.Down
	}
	if k == nil {
		return EntryKey{}, false
	}
	return *k, true
}

// Overlap records two entries of the same direction claiming one cell.
// The later entry (Kept) owns the cell in the index.
type Overlap struct {
	Cell      Coord     `json:"cell"`
	Direction Direction `json:"direction"`
	Kept      EntryKey  `json:"kept"`
	Dropped   EntryKey  `json:"dropped"`
}

// Index is the entry lookup derived from a grid and its entry definitions.
type Index struct {
	ByKey       map[EntryKey]IndexedEntry `json:"by_key"`
	CellEntries map[Coord]CellEntries     `json:"cell_entries"`
	Overlaps    []Overlap                 `json:"overlaps,omitempty"`
}

// EntryCells walks from the entry's start in its direction for Len() cells,
// stopping early at the board edge or a blocked cell.
func EntryCells(g Grid, e Entry) []EntryCell {
	dr, dc := e.Direction.Step()
	n := max(e.Len(), 0)
	cells := make([]EntryCell, 0, n)
	for i := range n {
		r, c := e.StartRow+dr*i, e.StartCol+dc*i
		if !g.IsOpen(r, c) {
			break
		}
		cells = append(cells, EntryCell{Row: r, Col: c, Offset: i})
	}
	return cells
}

// numberAt returns the clue number at the entry's start, 0 if none.
func numberAt(g Grid, e Entry) int {
	cell, ok := g.Cell(e.StartRow, e.StartCol)
	if !ok {
		return 0
	}
	return cell.Number
}

func indexEntry(g Grid, e Entry) IndexedEntry {
	return IndexedEntry{
		Entry:  e,
		Number: numberAt(g, e),
		Key:    e.Key(),
		Cells:  EntryCells(g, e),
	}
}

// BuildEntryIndex derives numbers, keys and cell lists for entries against g
// and maps every covered cell back to the entries crossing it. When two
// entries of one direction share a cell the later one wins and the
// collision is reported in Overlaps.
func BuildEntryIndex(g Grid, entries []Entry) Index {
	idx := Index{
		ByKey:       make(map[EntryKey]IndexedEntry, len(entries)),
		CellEntries: make(map[Coord]CellEntries),
	}
	for _, e := range entries {
		ie := indexEntry(g, e)
		idx.ByKey[ie.Key] = ie

		for _, cell := range ie.Cells {
			at := Coord{Row: cell.Row, Col: cell.Col}
			ce := idx.CellEntries[at]
			key := ie.Key
			prev := &ce.Across
			if e.Direction == Down {
				prev = &ce.Down
			}
			if *prev != nil && **prev != key {
				idx.Overlaps = append(idx.Overlaps, Overlap{
					Cell:      at,
					Direction: e.Direction,
					Kept:      key,
					Dropped:   **prev,
				})
			}
			*prev = &key
			idx.CellEntries[at] = ce
		}
	}
	return idx
}
