package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/bodul/xwedit/engine"
)

var errPuzzleNotFound = errors.New("puzzle not found")

// Puzzle is a stored puzzle definition.
type Puzzle struct {
	ID         string            `json:"id"`
	Title      string            `json:"title,omitempty"`
	Definition engine.Definition `json:"definition"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store holds puzzles and editor sessions in memory. When a database is
// attached every puzzle and every session change is also written there,
// and NewStoreWithDB reloads them.
type Store struct {
	mu       sync.RWMutex
	puzzles  map[string]*Puzzle
	sessions map[string]*EditorSession
	db       *badger.DB
	logger   *slog.Logger
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		puzzles:  make(map[string]*Puzzle),
		sessions: make(map[string]*EditorSession),
		logger:   slog.Default(),
	}
}

// NewStoreWithDB creates a store persisted to db and loads its contents.
// Records that no longer decode or validate are skipped with a warning.
func NewStoreWithDB(db *badger.DB, logger *slog.Logger) (*Store, error) {
	s := NewStore()
	s.db = db
	if logger != nil {
		s.logger = logger
	}

	err := scanJSON(db, puzzlePrefix, func(key string, raw []byte) error {
		var p Puzzle
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping stored puzzle", "key", key, "error", err)
			return nil
		}
		s.puzzles[p.ID] = &p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load puzzles: %w", err)
	}

	err = scanJSON(db, sessionPrefix, func(key string, raw []byte) error {
		var rec sessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping stored session", "key", key, "error", err)
			return nil
		}
		p := s.puzzles[rec.PuzzleID]
		if p == nil {
			s.logger.Warn("skipping orphan session", "session_id", rec.ID, "puzzle_id", rec.PuzzleID)
			return nil
		}
		ps, err := engine.AssemblePuzzleState(p.Definition)
		if err != nil {
			s.logger.Warn("skipping session of invalid puzzle", "session_id", rec.ID, "error", err)
			return nil
		}
		sess, err := restoreSession(rec, ps)
		if err != nil {
			s.logger.Warn("skipping stored session", "session_id", rec.ID, "error", err)
			return nil
		}
		sess.onChange = s.persistSession
		s.sessions[sess.ID] = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	s.logger.Info("store loaded", "puzzles", len(s.puzzles), "sessions", len(s.sessions))
	return s, nil
}

// SavePuzzle validates and stores a puzzle, assigning its ID.
func (s *Store) SavePuzzle(p *Puzzle) (*Puzzle, error) {
	if err := p.Definition.Validate(); err != nil {
		return nil, err
	}
	ps, err := engine.AssemblePuzzleState(p.Definition)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()

	for _, o := range ps.Index.Overlaps {
		s.logger.Warn("puzzle entries overlap",
			"puzzle_id", p.ID,
			"cell", o.Cell.String(),
			"kept", o.Kept.String(),
			"dropped", o.Dropped.String(),
		)
	}

	if s.db != nil {
		if err := putJSON(s.db, puzzlePrefix+p.ID, p); err != nil {
			return nil, fmt.Errorf("persist puzzle: %w", err)
		}
	}

	s.mu.Lock()
	s.puzzles[p.ID] = p
	s.mu.Unlock()

	return p, nil
}

// GetPuzzle returns a puzzle by ID, or nil if not found.
func (s *Store) GetPuzzle(id string) *Puzzle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puzzles[id]
}

// ListPuzzles returns all puzzles, most recent first.
func (s *Store) ListPuzzles() []*Puzzle {
	s.mu.RLock()
	list := make([]*Puzzle, 0, len(s.puzzles))
	for _, p := range s.puzzles {
		list = append(list, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Puzzle) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return list
}

// CreateSession opens an editor session on a puzzle.
func (s *Store) CreateSession(puzzleID string) (*EditorSession, error) {
	p := s.GetPuzzle(puzzleID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", errPuzzleNotFound, puzzleID)
	}
	ps, err := engine.AssemblePuzzleState(p.Definition)
	if err != nil {
		return nil, err
	}
	sess, err := newEditorSession(uuid.NewString(), p.ID, ps)
	if err != nil {
		return nil, err
	}
	if s.db != nil {
		if err := putJSON(s.db, sessionPrefix+sess.ID, sess.recordLocked()); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
		sess.onChange = s.persistSession
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess, nil
}

// GetSession returns a session by ID, or nil if not found.
func (s *Store) GetSession(id string) *EditorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// ListSessions returns all sessions.
func (s *Store) ListSessions() []*EditorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*EditorSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	return list
}

func (s *Store) persistSession(rec sessionRecord) {
	if err := putJSON(s.db, sessionPrefix+rec.ID, rec); err != nil {
		s.logger.Warn("persist session failed", "session_id", rec.ID, "error", err)
	}
}
