package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bodul/xwedit/engine"
)

const (
	minWordLength  = 3
	maxWordLength  = 15
	maxPromptWords = 500
)

var errFillRejected = errors.New("fill uses words outside the dictionary")

// WordList is a normalized dictionary: uppercase A-Z words of 3 to 15
// letters, sorted and unique. A nil *WordList is empty and accepts any fill.
type WordList struct {
	words []string
	set   map[string]struct{}
}

// NewWordList normalizes raw into a WordList.
func NewWordList(raw []string) *WordList {
	set := make(map[string]struct{}, len(raw))
	for _, w := range raw {
		w = strings.ToUpper(strings.TrimSpace(w))
		if validWord(w) {
			set[w] = struct{}{}
		}
	}
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	slices.Sort(words)
	return &WordList{words: words, set: set}
}

func validWord(w string) bool {
	if len(w) < minWordLength || len(w) > maxWordLength {
		return false
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'A' || w[i] > 'Z' {
			return false
		}
	}
	return true
}

// ReadWordList reads either a JSON array of words or one word per line.
func ReadWordList(r io.Reader) (*WordList, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(1)
	for err == nil && len(bytes.TrimSpace(head)) == 0 {
		br.ReadByte()
		head, err = br.Peek(1)
	}
	if errors.Is(err, io.EOF) {
		return NewWordList(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}

	if head[0] == '[' {
		var raw []string
		if err := json.NewDecoder(br).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode word list: %w", err)
		}
		return NewWordList(raw), nil
	}

	var raw []string
	sc := bufio.NewScanner(br)
	for sc.Scan() {
		raw = append(raw, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return NewWordList(raw), nil
}

// LoadWordList reads a dictionary file.
func LoadWordList(path string) (*WordList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()
	return ReadWordList(f)
}

// WriteJSON writes the words as a JSON array.
func (wl *WordList) WriteJSON(w io.Writer) error {
	words := wl.Words()
	if words == nil {
		words = []string{}
	}
	return json.NewEncoder(w).Encode(words)
}

// Len returns the number of words.
func (wl *WordList) Len() int {
	if wl == nil {
		return 0
	}
	return len(wl.words)
}

// Words returns the sorted words.
func (wl *WordList) Words() []string {
	if wl == nil {
		return nil
	}
	return slices.Clone(wl.words)
}

// Contains reports whether w is in the list.
func (wl *WordList) Contains(w string) bool {
	if wl == nil {
		return false
	}
	_, ok := wl.set[strings.ToUpper(w)]
	return ok
}

// Candidates returns up to limit words whose length matches a run on the
// request's board and that agree with its fixed letters.
func (wl *WordList) Candidates(req engine.SolveRequest, limit int) []string {
	if wl.Len() == 0 || req.Width <= 0 || req.Height <= 0 {
		return nil
	}
	g, err := engine.NewRectGrid(req.Height, req.Width, req.Blocked())
	if err != nil {
		return nil
	}
	for _, f := range req.FixedCells {
		g = g.WithChar(f.Row, f.Col, f.Char)
	}

	var patterns []string
	for _, d := range []engine.Direction{engine.Across, engine.Down} {
		for _, run := range g.Runs(d) {
			patterns = append(patterns, runPattern(g, run))
		}
	}

	var out []string
	for _, w := range wl.words {
		if len(out) >= limit {
			break
		}
		if slices.ContainsFunc(patterns, func(p string) bool { return matchPattern(p, w) }) {
			out = append(out, w)
		}
	}
	return out
}

// VerifyFill rejects a successful fill containing a complete run of three or
// more letters that is not in the list. A nil or empty list accepts
// everything.
func (wl *WordList) VerifyFill(resp engine.SolveResponse) error {
	if wl.Len() == 0 || resp.Status != engine.StatusSuccess || len(resp.Grid) == 0 {
		return nil
	}
	h, w := len(resp.Grid), len(resp.Grid[0])
	var blocked []engine.Coord
	for r, row := range resp.Grid {
		for c, v := range row {
			if v == engine.BlockedMark {
				blocked = append(blocked, engine.Coord{Row: r, Col: c})
			}
		}
	}
	g, err := engine.NewRectGrid(h, w, blocked)
	if err != nil {
		return err
	}
	for r, row := range resp.Grid {
		for c, v := range row {
			if v != engine.BlockedMark && v != engine.EmptyMark && v != engine.UnknownMark && v != "" {
				g = g.WithChar(r, c, v)
			}
		}
	}

	for _, d := range []engine.Direction{engine.Across, engine.Down} {
		for _, run := range g.Runs(d) {
			word := runPattern(g, run)
			if len(run) < minWordLength || strings.Contains(word, ".") {
				continue
			}
			if !wl.Contains(word) {
				return fmt.Errorf("%w: %s at %s %s", errFillRejected, word, run[0], d)
			}
		}
	}
	return nil
}

// runPattern spells a run, using '.' for empty cells.
func runPattern(g engine.Grid, run []engine.Coord) string {
	var b strings.Builder
	for _, c := range run {
		cell, _ := g.Cell(c.Row, c.Col)
		if cell.Char == "" {
			b.WriteByte('.')
		} else {
			b.WriteString(cell.Char)
		}
	}
	return b.String()
}

func matchPattern(pattern, word string) bool {
	if len(pattern) != len(word) {
		return false
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '.' && pattern[i] != word[i] {
			return false
		}
	}
	return true
}
