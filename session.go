package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bodul/xwedit/engine"
)

var errEntryNotFound = errors.New("entry not found")

// EditorSession is one editing session on a puzzle. It owns the interaction
// state and serializes every action applied to it.
type EditorSession struct {
	ID        string
	PuzzleID  string
	CreatedAt time.Time

	mu       sync.Mutex
	state    engine.State
	puzzle   engine.PuzzleState
	onChange func(sessionRecord)
}

// SessionView is what a renderer needs after each action.
type SessionView struct {
	ID         string            `json:"id"`
	PuzzleID   string            `json:"puzzle_id"`
	Grid       engine.Grid       `json:"grid"`
	Cursor     engine.Cursor     `json:"cursor"`
	ActiveWord []engine.Coord    `json:"active_word"`
	Across     []engine.ClueView `json:"across"`
	Down       []engine.ClueView `json:"down"`
	Overlaps   []engine.Overlap  `json:"overlaps,omitempty"`
	Action     string            `json:"action,omitempty"`
}

// sessionRecord is the persisted form of a session.
type sessionRecord struct {
	ID        string       `json:"id"`
	PuzzleID  string       `json:"puzzle_id"`
	State     engine.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

func newEditorSession(id, puzzleID string, p engine.PuzzleState) (*EditorSession, error) {
	st, err := engine.StateFor(p.Grid)
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return &EditorSession{
		ID:        id,
		PuzzleID:  puzzleID,
		CreatedAt: time.Now(),
		state:     st,
		puzzle:    p,
	}, nil
}

// restoreSession rebuilds a session from its record and the puzzle it edits.
func restoreSession(rec sessionRecord, p engine.PuzzleState) (*EditorSession, error) {
	if !engine.ValidCursor(rec.State.Grid, rec.State.Cursor) {
		return nil, fmt.Errorf("restore session %s: %w", rec.ID, engine.ErrCursorInvariant)
	}
	return &EditorSession{
		ID:        rec.ID,
		PuzzleID:  rec.PuzzleID,
		CreatedAt: rec.CreatedAt,
		state:     rec.State,
		puzzle:    p.WithGrid(rec.State.Grid),
	}, nil
}

// Dispatch applies a to the session. On error the state is left unchanged
// and the returned view reflects it. onChange runs under the session lock so
// snapshots reach storage in dispatch order.
func (s *EditorSession) Dispatch(a engine.Action) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := engine.Reduce(s.state, a)
	if err != nil {
		return s.viewLocked(), err
	}
	s.state = next
	s.puzzle = s.puzzle.WithGrid(next.Grid)
	if s.onChange != nil {
		s.onChange(s.recordLocked())
	}
	view := s.viewLocked()
	view.Action = engine.ActionName(a)
	return view, nil
}

// ClickEntry moves the cursor to the start of the entry with the given key,
// taking the entry's direction.
func (s *EditorSession) ClickEntry(key engine.EntryKey) (SessionView, error) {
	s.mu.Lock()
	_, ok := s.puzzle.Index.ByKey[key]
	s.mu.Unlock()
	if !ok {
		return s.View(), fmt.Errorf("%w: %s", errEntryNotFound, key)
	}
	dir := key.Direction
	return s.Dispatch(engine.SetCursor{Row: key.Row, Col: key.Col, Direction: &dir})
}

// View returns the current render view.
func (s *EditorSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// State returns the current interaction state. The value is a snapshot.
func (s *EditorSession) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SolveRequest describes the session's board for a solver.
func (s *EditorSession) SolveRequest(words []string) engine.SolveRequest {
	return engine.NewSolveRequest(s.State(), words)
}

func (s *EditorSession) viewLocked() SessionView {
	return SessionView{
		ID:         s.ID,
		PuzzleID:   s.PuzzleID,
		Grid:       s.state.Grid,
		Cursor:     s.state.Cursor,
		ActiveWord: s.state.ActiveWord(),
		Across:     s.puzzle.Clues(engine.Across, s.state.Cursor),
		Down:       s.puzzle.Clues(engine.Down, s.state.Cursor),
		Overlaps:   s.puzzle.Index.Overlaps,
	}
}

func (s *EditorSession) recordLocked() sessionRecord {
	return sessionRecord{
		ID:        s.ID,
		PuzzleID:  s.PuzzleID,
		State:     s.state,
		CreatedAt: s.CreatedAt,
	}
}
