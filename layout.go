package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/bodul/xwedit/engine"
)

const (
	layoutDensity  = 0.16
	layoutAttempts = 2000
	minRunLength   = 3
)

// LayoutGenerator builds block layouts locally: blocks are symmetric under a
// half turn, open cells stay connected and every run is at least three
// cells long.
type LayoutGenerator struct {
	logger *slog.Logger
}

// NewLayoutGenerator returns a generator. A nil logger uses slog.Default.
func NewLayoutGenerator(logger *slog.Logger) *LayoutGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayoutGenerator{logger: logger}
}

// Generate places blocks until roughly 16% of the board is blocked or the
// attempt budget runs out. A zero Seed picks a random one. Boards narrower
// than three cells come back without blocks.
func (g *LayoutGenerator) Generate(ctx context.Context, req engine.GenerateRequest) (engine.GenerateResponse, error) {
	h, w := req.Height, req.Width
	if h <= 0 || w <= 0 || h > engine.MaxSize || w > engine.MaxSize {
		return engine.GenerateResponse{}, fmt.Errorf("%w: %dx%d", engine.ErrInvalidGeometry, h, w)
	}
	seed := req.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	blocked := make([][]bool, h)
	for r := range blocked {
		blocked[r] = make([]bool, w)
	}

	count := 0
	target := int(float64(h*w) * layoutDensity)
	if h >= minRunLength && w >= minRunLength {
		for attempt := 0; count < target && attempt < layoutAttempts; attempt++ {
			if attempt%100 == 0 && ctx.Err() != nil {
				return engine.GenerateResponse{}, ctx.Err()
			}
			r, c := rng.IntN(h), rng.IntN(w)
			if blocked[r][c] {
				continue
			}
			sr, sc := h-1-r, w-1-c

			blocked[r][c], blocked[sr][sc] = true, true
			if validLayout(blocked) {
				count = countBlocked(blocked)
			} else {
				blocked[r][c], blocked[sr][sc] = false, false
			}
		}
	}

	resp := engine.GenerateResponse{
		Status:     engine.StatusSuccess,
		Width:      w,
		Height:     h,
		BlackCells: [][2]int{},
	}
	for r, row := range blocked {
		for c, b := range row {
			if b {
				resp.BlackCells = append(resp.BlackCells, [2]int{r, c})
			}
		}
	}
	g.logger.Debug("layout generated", "rows", h, "cols", w, "seed", seed, "blocks", len(resp.BlackCells))
	return resp, nil
}

func countBlocked(blocked [][]bool) int {
	n := 0
	for _, row := range blocked {
		for _, b := range row {
			if b {
				n++
			}
		}
	}
	return n
}

func validLayout(blocked [][]bool) bool {
	return connected(blocked) && !hasShortRun(blocked)
}

// connected reports whether every open cell is reachable from the first.
func connected(blocked [][]bool) bool {
	h, w := len(blocked), len(blocked[0])
	open := 0
	start := -1
	for r := range h {
		for c := range w {
			if !blocked[r][c] {
				if start < 0 {
					start = r*w + c
				}
				open++
			}
		}
	}
	if open == 0 {
		return true
	}

	seen := make([]bool, h*w)
	seen[start] = true
	queue := []int{start}
	reached := 0
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		reached++
		r, c := idx/w, idx%w
		for _, d := range [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}} {
			nr, nc := r+d[0], c+d[1]
			if nr < 0 || nr >= h || nc < 0 || nc >= w || blocked[nr][nc] {
				continue
			}
			if n := nr*w + nc; !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return reached == open
}

// hasShortRun reports an open run of one or two cells in either direction.
func hasShortRun(blocked [][]bool) bool {
	h, w := len(blocked), len(blocked[0])
	short := func(n int) bool { return n > 0 && n < minRunLength }

	for r := range h {
		n := 0
		for c := range w {
			if blocked[r][c] {
				if short(n) {
					return true
				}
				n = 0
			} else {
				n++
			}
		}
		if short(n) {
			return true
		}
	}
	for c := range w {
		n := 0
		for r := range h {
			if blocked[r][c] {
				if short(n) {
					return true
				}
				n = 0
			} else {
				n++
			}
		}
		if short(n) {
			return true
		}
	}
	return false
}
