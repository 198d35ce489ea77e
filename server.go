package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bodul/xwedit/engine"
)

const (
	maxBodySize      = 1 << 20 // 1 MiB
	collaboratorWait = 90 * time.Second
	sweepInterval    = time.Minute
)

// Solver fills a board, keeping its fixed letters.
type Solver interface {
	Solve(ctx context.Context, req engine.SolveRequest) (engine.SolveResponse, error)
}

// Generator proposes a new block layout.
type Generator interface {
	Generate(ctx context.Context, req engine.GenerateRequest) (engine.GenerateResponse, error)
}

// Server is the main HTTP server.
type Server struct {
	mux       *http.ServeMux
	handler   http.Handler
	store     *Store
	solver    Solver
	generator Generator
	words     *WordList
	sse       *Broadcaster
	upgrader  websocket.Upgrader
	actionRL  *rateLimiter
	solveRL   *rateLimiter
	logger    *slog.Logger
}

// ServerOptions wires optional collaborators into a Server. A nil Solver or
// Generator disables the matching endpoint.
type ServerOptions struct {
	Solver    Solver
	Generator Generator
	Words     *WordList
	Limits    LimitsConfig
	Logger    *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(store *Store, opts ServerOptions) *Server {
	limits := opts.Limits
	if limits.ActionsPerSecond <= 0 {
		limits.ActionsPerSecond = DefaultConfig().Limits.ActionsPerSecond
	}
	if limits.SolvesPerMinute <= 0 {
		limits.SolvesPerMinute = DefaultConfig().Limits.SolvesPerMinute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		store:     store,
		solver:    opts.Solver,
		generator: opts.Generator,
		words:     opts.Words,
		sse:       NewBroadcaster(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		actionRL: newRateLimiter(limits.ActionsPerSecond, time.Second),
		solveRL:  newRateLimiter(limits.SolvesPerMinute, time.Minute),
		logger:   logger,
	}
	s.routes()
	s.handler = s.instrument(s.mux)
	return s
}

func (s *Server) routes() {
	// Puzzle API
	s.mux.HandleFunc("POST /api/puzzles", s.handleCreatePuzzle)
	s.mux.HandleFunc("GET /api/puzzles", s.handleListPuzzles)
	s.mux.HandleFunc("GET /api/puzzles/{id}", s.handleGetPuzzle)

	// Session API
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/actions", s.handleAction)
	s.mux.HandleFunc("POST /api/sessions/{id}/entries/{key}/click", s.handleClickEntry)
	s.mux.HandleFunc("POST /api/sessions/{id}/solve", s.handleSolve)
	s.mux.HandleFunc("POST /api/sessions/{id}/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleSessionSocket)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	s.handler.ServeHTTP(w, r)
}

// SweepLimiters forgets idle rate limit visitors until ctx is done.
func (s *Server) SweepLimiters(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.actionRL.sweep()
			s.solveRL.sweep()
		}
	}
}

// GET / lists the service's endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "xwedit",
		"solver":  s.solver != nil,
		"words":   s.words.Len(),
		"endpoints": []string{
			"POST /api/puzzles",
			"GET /api/puzzles",
			"GET /api/puzzles/{id}",
			"POST /api/sessions",
			"GET /api/sessions/{id}",
			"POST /api/sessions/{id}/actions",
			"POST /api/sessions/{id}/entries/{key}/click",
			"POST /api/sessions/{id}/solve",
			"POST /api/sessions/{id}/generate",
			"GET /api/sessions/{id}/events",
			"GET /api/sessions/{id}/ws",
			"GET /metrics",
		},
	})
}

// --- Puzzle handlers ---

// POST /api/puzzles stores a puzzle definition.
func (s *Server) handleCreatePuzzle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string            `json:"title"`
		Definition engine.Definition `json:"definition"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.store.SavePuzzle(&Puzzle{Title: req.Title, Definition: req.Definition})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("puzzle created", "puzzle_id", p.ID, "size", p.Definition.Size, "entries", len(p.Definition.Entries))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListPuzzles())
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	p := s.store.GetPuzzle(r.PathValue("id"))
	if p == nil {
		jsonError(w, "puzzle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Session handlers ---

// POST /api/sessions opens an editor session on a puzzle.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PuzzleID string `json:"puzzle_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || req.PuzzleID == "" {
		jsonError(w, "field 'puzzle_id' is required", http.StatusBadRequest)
		return
	}

	sess, err := s.store.CreateSession(req.PuzzleID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("session created", "session_id", sess.ID, "puzzle_id", sess.PuzzleID)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// POST /api/sessions/{id}/actions applies one action.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if !s.actionRL.allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	a, err := engine.DecodeAction(body)
	if err != nil {
		actionsTotal.WithLabelValues("unknown", "invalid").Inc()
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := s.dispatch(sess, a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/entries/{key}/click jumps to an entry's start.
func (s *Server) handleClickEntry(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	key, err := engine.ParseEntryKey(r.PathValue("key"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := sess.ClickEntry(key)
	actionsTotal.WithLabelValues("click_entry", outcome(err)).Inc()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.publish(sess.ID, nil, view)
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/solve asks the solver to fill the board.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if s.solver == nil {
		jsonError(w, "solver not configured", http.StatusServiceUnavailable)
		return
	}
	if !s.solveRL.allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	req := sess.SolveRequest(nil)
	req.Words = s.words.Candidates(req, maxPromptWords)

	ctx, cancel := context.WithTimeout(r.Context(), collaboratorWait)
	defer cancel()

	start := time.Now()
	resp, err := s.solver.Solve(ctx, req)
	if err == nil {
		err = s.words.VerifyFill(resp)
	}
	var a engine.Action
	if err == nil {
		a, err = resp.Action()
	}
	collaboratorRequests.WithLabelValues("solve", outcome(err)).Inc()
	if err != nil {
		s.collaboratorFailed(w, sess, "solve", err)
		return
	}
	s.logger.Info("solver succeeded", "session_id", sess.ID, "dur", time.Since(start).Round(time.Millisecond))

	view, err := s.dispatch(sess, a)
	if err != nil {
		s.collaboratorFailed(w, sess, "solve", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/generate replaces the board with a new layout.
// An empty body keeps the session's current dimensions.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		jsonError(w, "generator not configured", http.StatusServiceUnavailable)
		return
	}
	if !s.solveRL.allow(clientIP(r)) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	g := sess.State().Grid
	req := engine.GenerateRequest{Width: g.Width(), Height: g.Height()}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Width <= 0 || req.Height <= 0 || req.Width > engine.MaxSize || req.Height > engine.MaxSize {
		jsonError(w, "width and height must be between 1 and 64", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), collaboratorWait)
	defer cancel()

	resp, err := s.generator.Generate(ctx, req)
	var a engine.Action
	if err == nil {
		a, err = resp.Action()
	}
	collaboratorRequests.WithLabelValues("generate", outcome(err)).Inc()
	if err != nil {
		s.collaboratorFailed(w, sess, "generate", err)
		return
	}

	view, err := s.dispatch(sess, a)
	if err != nil {
		s.collaboratorFailed(w, sess, "generate", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/sessions/{id}/events streams session views.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	view := sess.View()
	s.sse.ServeSSE(w, r, sess.ID, Event{Type: eventSnapshot, Session: &view})
}

// --- Helpers ---

// session looks up the {id} session, answering 404 when it is missing.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *EditorSession {
	sess := s.store.GetSession(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
	}
	return sess
}

// dispatch applies a, counts it and broadcasts the resulting view.
func (s *Server) dispatch(sess *EditorSession, a engine.Action) (SessionView, error) {
	name := engine.ActionName(a)
	view, err := sess.Dispatch(a)
	actionsTotal.WithLabelValues(name, outcome(err)).Inc()
	if err != nil {
		s.logger.Debug("action rejected", "session_id", sess.ID, "action", name, "error", err)
		return view, err
	}
	s.publish(sess.ID, a, view)
	return view, nil
}

func (s *Server) publish(sessionID string, a engine.Action, view SessionView) {
	evt := Event{Type: eventAction, Session: &view}
	if a != nil {
		raw, err := engine.EncodeAction(a)
		if err == nil {
			evt.Action = raw
		}
	}
	s.sse.Publish(sessionID, evt)
}

// collaboratorFailed reports a solver or generator failure. The session is
// untouched.
func (s *Server) collaboratorFailed(w http.ResponseWriter, sess *EditorSession, kind string, err error) {
	s.logger.Warn("collaborator failed", "kind", kind, "session_id", sess.ID, "error", err)
	s.sse.Publish(sess.ID, Event{Type: eventError, Error: kind + " failed: " + err.Error()})
	if errors.Is(err, context.DeadlineExceeded) {
		jsonError(w, kind+" timed out", http.StatusGatewayTimeout)
		return
	}
	jsonError(w, kind+" failed: "+err.Error(), http.StatusBadGateway)
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errPuzzleNotFound), errors.Is(err, errEntryNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidDefinition),
		errors.Is(err, engine.ErrInvalidGeometry),
		errors.Is(err, engine.ErrDimensionMismatch),
		errors.Is(err, engine.ErrInvalidChar),
		errors.Is(err, engine.ErrCursorInvariant):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
