package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryLen(t *testing.T) {
	assert.Equal(t, 4, Entry{Answer: "HOLE"}.Len())
	assert.Equal(t, 3, Entry{Length: 3}.Len())
	assert.Equal(t, 4, Entry{Answer: "HOLE", Length: 9}.Len(), "answer wins over length")
}

func TestEntryCells(t *testing.T) {
	g := mustGrid(t, 5, Coord{2, 3})

	across := EntryCells(g, Entry{Direction: Across, StartRow: 0, StartCol: 1, Answer: "ABC"})
	assert.Equal(t, []EntryCell{{0, 1, 0}, {0, 2, 1}, {0, 3, 2}}, across)

	down := EntryCells(g, Entry{Direction: Down, StartRow: 1, StartCol: 4, Length: 3})
	assert.Equal(t, []EntryCell{{1, 4, 0}, {2, 4, 1}, {3, 4, 2}}, down)
}

func TestEntryCellsTruncates(t *testing.T) {
	g := mustGrid(t, 5, Coord{2, 3})

	assert.Len(t, EntryCells(g, Entry{Direction: Across, StartRow: 2, StartCol: 0, Answer: "ABCDE"}), 3, "stops at block")
	assert.Len(t, EntryCells(g, Entry{Direction: Down, StartRow: 3, StartCol: 0, Answer: "ABCDE"}), 2, "stops at edge")
	assert.Empty(t, EntryCells(g, Entry{Direction: Across, StartRow: 2, StartCol: 3, Answer: "AB"}), "starts on block")
	assert.Empty(t, EntryCells(g, Entry{Direction: Across, StartRow: 9, StartCol: 9, Answer: "AB"}), "starts off board")
	assert.Empty(t, EntryCells(g, Entry{Direction: Down, StartRow: 0, StartCol: 0, Length: -3}), "negative length")
}

func TestBuildEntryIndex(t *testing.T) {
	g := mustGrid(t, 3, Coord{1, 1})
	entries := []Entry{
		{Direction: Across, StartRow: 0, StartCol: 0, Clue: "top", Answer: "ABC"},
		{Direction: Down, StartRow: 0, StartCol: 0, Clue: "left", Answer: "ADG"},
		{Direction: Down, StartRow: 0, StartCol: 2, Clue: "right", Answer: "CFI"},
		{Direction: Across, StartRow: 2, StartCol: 0, Clue: "bottom", Answer: "GHI"},
	}
	idx := BuildEntryIndex(g, entries)

	require.Len(t, idx.ByKey, 4)
	assert.Empty(t, idx.Overlaps)

	top := idx.ByKey[EntryKey{0, 0, Across}]
	assert.Equal(t, 1, top.Number)
	assert.Equal(t, "top", top.Clue)
	assert.Len(t, top.Cells, 3)

	assert.Equal(t, 2, idx.ByKey[EntryKey{0, 2, Down}].Number)
	assert.Equal(t, 3, idx.ByKey[EntryKey{2, 0, Across}].Number)

	corner := idx.CellEntries[Coord{0, 0}]
	require.NotNil(t, corner.Across)
	require.NotNil(t, corner.Down)
	assert.Equal(t, EntryKey{0, 0, Across}, *corner.Across)
	assert.Equal(t, EntryKey{0, 0, Down}, *corner.Down)

	_, inIndex := idx.CellEntries[Coord{1, 1}]
	assert.False(t, inIndex, "blocked cell belongs to no entry")
}

func TestBuildEntryIndexCompleteness(t *testing.T) {
	g := mustGrid(t, 5, Coord{0, 4}, Coord{4, 0}, Coord{2, 2})
	entries := []Entry{
		{Direction: Across, StartRow: 0, StartCol: 0, Answer: "ABCD"},
		{Direction: Across, StartRow: 2, StartCol: 0, Answer: "AB"},
		{Direction: Across, StartRow: 2, StartCol: 3, Answer: "AB"},
		{Direction: Down, StartRow: 0, StartCol: 0, Answer: "ABCD"},
		{Direction: Down, StartRow: 1, StartCol: 4, Answer: "ABCD"},
		{Direction: Down, StartRow: 3, StartCol: 2, Answer: "ABCDEF"},
	}
	idx := BuildEntryIndex(g, entries)

	for _, e := range entries {
		for _, cell := range EntryCells(g, e) {
			key, ok := idx.CellEntries[Coord{cell.Row, cell.Col}].For(e.Direction)
			require.True(t, ok, "cell %v of %v missing", cell, e.Key())
			assert.Equal(t, e.Key(), key)
		}
	}
}

func TestBuildEntryIndexMissingNumber(t *testing.T) {
	g := mustGrid(t, 3)
	idx := BuildEntryIndex(g, []Entry{{Direction: Across, StartRow: 1, StartCol: 1, Answer: "AB"}})
	assert.Equal(t, 0, idx.ByKey[EntryKey{1, 1, Across}].Number)

	idx = BuildEntryIndex(g, []Entry{{Direction: Across, StartRow: 7, StartCol: 7, Answer: "AB"}})
	assert.Equal(t, 0, idx.ByKey[EntryKey{7, 7, Across}].Number)
	assert.Empty(t, idx.CellEntries)
}

func TestBuildEntryIndexRecordsOverlaps(t *testing.T) {
	g := mustGrid(t, 4)
	first := Entry{Direction: Across, StartRow: 0, StartCol: 0, Answer: "ABC"}
	second := Entry{Direction: Across, StartRow: 0, StartCol: 2, Answer: "CD"}
	idx := BuildEntryIndex(g, []Entry{first, second})

	key, _ := idx.CellEntries[Coord{0, 2}].For(Across)
	assert.Equal(t, second.Key(), key, "later entry owns the shared cell")
	assert.Equal(t, []Overlap{{Cell: Coord{0, 2}, Direction: Across, Kept: second.Key(), Dropped: first.Key()}}, idx.Overlaps)
}

func TestEntryKeyText(t *testing.T) {
	k := EntryKey{Row: 4, Col: 1, Direction: Down}
	assert.Equal(t, "4,1,down", k.String())

	back, err := ParseEntryKey("4,1,down")
	require.NoError(t, err)
	assert.Equal(t, k, back)

	for _, bad := range []string{"", "4,1", "4,x,down", "4,1,sideways"} {
		_, err := ParseEntryKey(bad)
		assert.Error(t, err, bad)
	}

	b, err := json.Marshal(map[EntryKey]string{k: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"4,1,down":"x"}`, string(b))
}
