package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Direction is the orientation of an entry or of the cursor's typing flow.
type Direction int

const (
	Across Direction = iota
	Down
)

// Toggle returns the other direction.
func (d Direction) Toggle() Direction {
	if d == Across {
		return Down
	}
	return Across
}

// Step returns the (dRow, dCol) delta of one forward step in d.
func (d Direction) Step() (int, int) {
	if d == Across {
		return 0, 1
	}
	return 1, 0
}

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "across"
}

// ParseDirection accepts "across"/"down" (case-insensitive) and the
// single-letter forms "a"/"d".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "across", "a":
		return Across, nil
	case "down", "d":
		return Down, nil
	}
	return Across, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Coord addresses a cell. Its text form is "row,col", which keeps it usable
// as a JSON map key and matches the coordinate strings puzzle sources send.
type Coord struct {
	Row int
	Col int
}

func (c Coord) String() string {
	return strconv.Itoa(c.Row) + "," + strconv.Itoa(c.Col)
}

// ParseCoord parses a "row,col" string.
func ParseCoord(s string) (Coord, error) {
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return Coord{}, fmt.Errorf("coordinate %q: expected row,col", s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(r))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(c))
	if err != nil {
		return Coord{}, fmt.Errorf("coordinate %q: %w", s, err)
	}
	return Coord{Row: row, Col: col}, nil
}

func (c Coord) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Coord) UnmarshalText(b []byte) error {
	v, err := ParseCoord(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type coordJSON struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MarshalJSON encodes c as {"row":r,"col":c}. Map keys keep the text form.
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal(coordJSON{Row: c.Row, Col: c.Col})
}

// UnmarshalJSON accepts the object form, a "row,col" string or a [row,col]
// pair.
func (c *Coord) UnmarshalJSON(b []byte) error {
	switch {
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return c.UnmarshalText([]byte(s))
	case len(b) > 0 && b[0] == '[':
		var pair [2]int
		if err := json.Unmarshal(b, &pair); err != nil {
			return fmt.Errorf("coordinate pair: %w", err)
		}
		*c = Coord{Row: pair[0], Col: pair[1]}
		return nil
	}
	var v coordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Coord(v)
	return nil
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}
