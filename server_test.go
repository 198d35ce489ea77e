package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bodul/xwedit/engine"
)

func newTestServer() *Server {
	return NewServer(NewStore(), ServerOptions{Generator: NewLayoutGenerator(nil)})
}

func do(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

// seedSession stores the test puzzle and opens a session on it.
func seedSession(t *testing.T, s *Server) *EditorSession {
	t.Helper()
	p := newTestPuzzle(t, s.store)
	sess, err := s.store.CreateSession(p.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var v SessionView
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

// stubSolver answers every request with resp or err.
type stubSolver struct {
	resp  engine.SolveResponse
	err   error
	calls int
}

func (s *stubSolver) Solve(_ context.Context, _ engine.SolveRequest) (engine.SolveResponse, error) {
	s.calls++
	return s.resp, s.err
}

// testFill is a complete fill of the test board.
func testFill() [][]string {
	return [][]string{
		{"L", "I", "O", "N", "#"},
		{"A", "R", "E", "A", "S"},
		{"M", "O", "T", "E", "T"},
		{"B", "N", "E", "S", "T"},
		{"#", "S", "A", "N", "D"},
	}
}

func TestIndexRoute(t *testing.T) {
	srv := newTestServer()

	w := do(srv, "GET", "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected application/json, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), `"service":"xwedit"`) {
		t.Fatalf("unexpected index body: %s", w.Body.String())
	}

	if w := do(srv, "GET", "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestFullEditingFlow(t *testing.T) {
	srv := newTestServer()

	// Create puzzle.
	def, _ := json.Marshal(map[string]any{"title": "Mini", "definition": testDefinition()})
	w := do(srv, "POST", "/api/puzzles", string(def))
	if w.Code != http.StatusCreated {
		t.Fatalf("create puzzle: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var p Puzzle
	json.NewDecoder(w.Body).Decode(&p)
	if p.ID == "" || p.Title != "Mini" {
		t.Fatalf("unexpected puzzle: %+v", p)
	}

	// List and fetch it.
	w = do(srv, "GET", "/api/puzzles", "")
	var list []Puzzle
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 {
		t.Fatalf("expected 1 puzzle, got %d", len(list))
	}
	if w := do(srv, "GET", "/api/puzzles/"+p.ID, ""); w.Code != http.StatusOK {
		t.Fatalf("get puzzle: expected 200, got %d", w.Code)
	}

	// Open a session.
	w = do(srv, "POST", "/api/sessions", `{"puzzle_id":"`+p.ID+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.ID == "" || view.PuzzleID != p.ID {
		t.Fatalf("unexpected session view: %+v", view)
	}
	base := "/api/sessions/" + view.ID

	// Type two letters, switch direction, step down, erase.
	for _, body := range []string{
		`{"type":"set_char","char":"l"}`,
		`{"type":"set_char","char":"i"}`,
		`{"type":"toggle_direction"}`,
		`{"type":"move","d_row":1,"d_col":0}`,
		`{"type":"backspace"}`,
	} {
		w = do(srv, "POST", base+"/actions", body)
		if w.Code != http.StatusOK {
			t.Fatalf("action %s: expected 200, got %d: %s", body, w.Code, w.Body.String())
		}
	}
	view = decodeView(t, w)
	if view.Action != engine.ActionBackspace {
		t.Fatalf("expected last action backspace, got %q", view.Action)
	}

	// Verify state.
	w = do(srv, "GET", base, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d", w.Code)
	}
	view = decodeView(t, w)
	want := engine.Cursor{Row: 0, Col: 2, Direction: engine.Down}
	if view.Cursor != want {
		t.Fatalf("expected cursor %+v, got %+v", want, view.Cursor)
	}
	c00, _ := view.Grid.Cell(0, 0)
	c01, _ := view.Grid.Cell(0, 1)
	if c00.Char != "L" || c01.Char != "I" {
		t.Fatalf("expected L I on the first row, got %q %q", c00.Char, c01.Char)
	}
}

func TestCreateSessionInvalidPuzzle(t *testing.T) {
	srv := newTestServer()

	w := do(srv, "POST", "/api/sessions", `{"puzzle_id":"nonexistent"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = do(srv, "POST", "/api/sessions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	huge := `{"puzzle_id":"` + strings.Repeat("a", maxBodySize+1) + `"}`
	w = do(srv, "POST", "/api/sessions", huge)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversized body, got %d", w.Code)
	}
}

func TestCreatePuzzleValidation(t *testing.T) {
	srv := newTestServer()

	w := do(srv, "POST", "/api/puzzles", `{"definition":{"size":0}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}

	w = do(srv, "POST", "/api/puzzles", `{"definition":{"size":5,"entries":[{"direction":"sideways"}]}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = do(srv, "POST", "/api/puzzles", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestActionValidation(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)
	base := "/api/sessions/" + sess.ID

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown session", "/api/sessions/nope/actions", `{"type":"backspace"}`, http.StatusNotFound},
		{"unknown type", base + "/actions", `{"type":"jump"}`, http.StatusBadRequest},
		{"bad json", base + "/actions", `{`, http.StatusBadRequest},
		{"bad field", base + "/actions", `{"type":"move","d_row":"x"}`, http.StatusBadRequest},
		{"wrong dimensions", base + "/actions", `{"type":"set_grid_data","data":[["A"]]}`, http.StatusUnprocessableEntity},
		{"invalid reset", base + "/actions", `{"type":"reset","rows":0}`, http.StatusUnprocessableEntity},
		{"oversized reset", base + "/actions", `{"type":"reset","rows":1500,"cols":1500}`, http.StatusUnprocessableEntity},
		{"oversized rect reset", base + "/actions", `{"type":"reset","rows":5,"cols":65}`, http.StatusUnprocessableEntity},
		{"bad cell data", base + "/actions", `{"type":"set_grid_data","data":[["xyz","","","",""],["","","","",""],["","","","",""],["","","","",""],["","","","",""]]}`, http.StatusUnprocessableEntity},
		{"ok", base + "/actions", `{"type":"set_cursor","row":2,"col":3}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(srv, "POST", tt.path, tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}

	st := sess.State()
	if st.Cursor.Row != 2 || st.Cursor.Col != 3 {
		t.Fatalf("expected only the valid action to apply, cursor at %+v", st.Cursor)
	}
	if st.Grid.Height() != 5 || st.Grid.Width() != 5 {
		t.Fatalf("rejected resets changed the board to %dx%d", st.Grid.Height(), st.Grid.Width())
	}
}

func TestClickEntryRoute(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)
	base := "/api/sessions/" + sess.ID + "/entries/"

	w := do(srv, "POST", base+"0,0,down/click", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Cursor.Direction != engine.Down {
		t.Fatalf("expected direction down, got %s", view.Cursor.Direction)
	}

	if w := do(srv, "POST", base+"2,2,across/click", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing entry, got %d", w.Code)
	}
	if w := do(srv, "POST", base+"garbage/click", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad key, got %d", w.Code)
	}
}

func TestSolveNotConfigured(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)

	w := do(srv, "POST", "/api/sessions/"+sess.ID+"/solve", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSolveAppliesFill(t *testing.T) {
	solver := &stubSolver{resp: engine.SolveResponse{Status: engine.StatusSuccess, Grid: testFill()}}
	srv := NewServer(NewStore(), ServerOptions{Solver: solver})
	sess := seedSession(t, srv)

	w := do(srv, "POST", "/api/sessions/"+sess.ID+"/solve", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Action != engine.ActionSetGridData {
		t.Fatalf("expected set_grid_data, got %q", view.Action)
	}
	cell, _ := view.Grid.Cell(4, 4)
	if cell.Char != "D" {
		t.Fatalf("expected D at 4,4, got %q", cell.Char)
	}
	if solver.calls != 1 {
		t.Fatalf("expected 1 solver call, got %d", solver.calls)
	}
}

func TestSolveFailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		solver *stubSolver
	}{
		{"transport error", &stubSolver{err: errors.New("connection refused")}},
		{"reported failure", &stubSolver{resp: engine.SolveResponse{Status: engine.StatusFailed, Message: "no fill"}}},
		{"wrong shape", &stubSolver{resp: engine.SolveResponse{Status: engine.StatusSuccess, Grid: [][]string{{"A"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(NewStore(), ServerOptions{Solver: tt.solver})
			sess := seedSession(t, srv)
			sess.Dispatch(engine.TypeChar{Char: "Q"})
			before := sess.State()

			w := do(srv, "POST", "/api/sessions/"+sess.ID+"/solve", "")
			if w.Code != http.StatusBadGateway {
				t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
			}
			after := sess.State()
			cell, _ := after.Grid.Cell(0, 0)
			if cell.Char != "Q" || after.Cursor != before.Cursor {
				t.Fatalf("state changed after failed solve: %q %+v", cell.Char, after.Cursor)
			}
		})
	}
}

func TestSolveRejectsWordsOutsideDictionary(t *testing.T) {
	solver := &stubSolver{resp: engine.SolveResponse{Status: engine.StatusSuccess, Grid: testFill()}}
	words := NewWordList([]string{"LION", "LAMB"})
	srv := NewServer(NewStore(), ServerOptions{Solver: solver, Words: words})
	sess := seedSession(t, srv)

	w := do(srv, "POST", "/api/sessions/"+sess.ID+"/solve", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "dictionary") {
		t.Fatalf("expected dictionary error, got %s", w.Body.String())
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)
	path := "/api/sessions/" + sess.ID + "/generate"

	w := do(srv, "POST", path, `{"width":9,"height":9,"seed":42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Grid.Height() != 9 || view.Grid.Width() != 9 {
		t.Fatalf("expected 9x9 grid, got %dx%d", view.Grid.Height(), view.Grid.Width())
	}
	if view.Action != engine.ActionReset {
		t.Fatalf("expected reset, got %q", view.Action)
	}

	// An empty body keeps the current size.
	w = do(srv, "POST", path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if view := decodeView(t, w); view.Grid.Height() != 9 {
		t.Fatalf("expected size to be kept, got %d rows", view.Grid.Height())
	}

	if w := do(srv, "POST", path, `{"width":0,"height":5}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer()

	w := do(srv, "GET", "/api/puzzles", "")

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for k, v := range headers {
		if got := w.Header().Get(k); got != v {
			t.Errorf("header %s: expected %q, got %q", k, v, got)
		}
	}
	if csp := w.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := range 3 {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("4th request should be rate limited")
	}

	// Different IP should be allowed.
	if !rl.allow("5.6.7.8") {
		t.Fatal("different IP should be allowed")
	}

	rl.sweep()
	if len(rl.visitors) != 2 {
		t.Fatalf("sweep must keep recent visitors, got %d", len(rl.visitors))
	}
}

func TestActionRateLimited(t *testing.T) {
	srv := NewServer(NewStore(), ServerOptions{Limits: LimitsConfig{ActionsPerSecond: 1, SolvesPerMinute: 1}})
	sess := seedSession(t, srv)
	path := "/api/sessions/" + sess.ID + "/actions"

	if w := do(srv, "POST", path, `{"type":"toggle_direction"}`); w.Code != http.StatusOK {
		t.Fatalf("first action: expected 200, got %d", w.Code)
	}
	if w := do(srv, "POST", path, `{"type":"toggle_direction"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second action: expected 429, got %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)
	do(srv, "POST", "/api/sessions/"+sess.ID+"/actions", `{"type":"backspace"}`)

	w := do(srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"xwedit_actions_total", "xwedit_http_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestSessionEventsStream(t *testing.T) {
	srv := newTestServer()
	sess := seedSession(t, srv)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/sessions/"+sess.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	events := bufio.NewReader(resp.Body)
	next := func() Event {
		t.Helper()
		for {
			line, err := events.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var evt Event
				if err := json.Unmarshal([]byte(data), &evt); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return evt
			}
		}
	}

	if evt := next(); evt.Type != eventSnapshot || evt.Session == nil || evt.Session.ID != sess.ID {
		t.Fatalf("expected snapshot first, got %+v", evt)
	}

	// Wait for the subscription before publishing.
	for srv.sse.SubscriberCount(sess.ID) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if w := do(srv, "POST", "/api/sessions/"+sess.ID+"/actions", `{"type":"set_char","char":"Z"}`); w.Code != http.StatusOK {
		t.Fatalf("action: expected 200, got %d", w.Code)
	}

	evt := next()
	if evt.Type != eventAction {
		t.Fatalf("expected action event, got %q", evt.Type)
	}
	if !strings.Contains(string(evt.Action), `"set_char"`) {
		t.Fatalf("expected encoded action, got %s", evt.Action)
	}
	cell, _ := evt.Session.Grid.Cell(0, 0)
	if cell.Char != "Z" {
		t.Fatalf("expected Z at 0,0 in the event, got %q", cell.Char)
	}
}
