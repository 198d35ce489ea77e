package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bodul/xwedit/engine"
)

var errInvalidFill = errors.New("invalid solver fill")

const solvePrompt = `You fill crossword grids.

The board is %d rows by %d columns. Cells are addressed [row, col] from 0.
Blocked cells: %s
Letters already placed, which must be kept: %s
%s
Fill every open cell with one uppercase letter A-Z so that each horizontal
and vertical run of two or more open cells is a real English word.

Reply ONLY with JSON of the form:
{"status": "success", "grid": [["A", "#", ...], ...]}
using "#" for blocked cells, one row array per board row. If the board
cannot be filled reply {"status": "failed", "message": "<reason>"}.`

var solveSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"status": {
			Type: genai.TypeString,
			Enum: []string{engine.StatusSuccess, engine.StatusFailed},
		},
		"grid": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		"message": {Type: genai.TypeString},
	},
	Required: []string{"status"},
}

// Solve asks Gemini for a fill of req and checks that the answer fits the
// board: same shape, blocks where the board has them, fixed letters kept.
func (g *GeminiClient) Solve(ctx context.Context, req engine.SolveRequest) (engine.SolveResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildSolvePrompt(req)}},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.2)),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   solveSchema,
		},
	)
	if err != nil {
		return engine.SolveResponse{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return engine.SolveResponse{}, fmt.Errorf("empty gemini response")
	}

	var out engine.SolveResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return engine.SolveResponse{}, fmt.Errorf("parse fill JSON: %w\nraw response: %s", err, text)
	}
	if out.Status != engine.StatusSuccess {
		return out, nil
	}
	if err := checkFill(req, out.Grid); err != nil {
		return engine.SolveResponse{}, err
	}
	return out, nil
}

func buildSolvePrompt(req engine.SolveRequest) string {
	black, _ := json.Marshal(req.BlackCells)
	fixed, _ := json.Marshal(req.FixedCells)
	words := ""
	if len(req.Words) > 0 {
		words = "Prefer words from this list: " + strings.Join(req.Words, ", ") + "\n"
	}
	return fmt.Sprintf(solvePrompt, req.Height, req.Width, black, fixed, words)
}

// checkFill validates a fill against the request and normalizes letters to
// upper case in place.
func checkFill(req engine.SolveRequest, fill [][]string) error {
	if len(fill) != req.Height {
		return fmt.Errorf("%w: %d rows, want %d", errInvalidFill, len(fill), req.Height)
	}
	blocked := make(map[[2]int]bool, len(req.BlackCells))
	for _, b := range req.BlackCells {
		blocked[b] = true
	}
	for r, row := range fill {
		if len(row) != req.Width {
			return fmt.Errorf("%w: row %d has %d cells, want %d", errInvalidFill, r, len(row), req.Width)
		}
		for c, v := range row {
			if blocked[[2]int{r, c}] {
				if v != engine.BlockedMark {
					return fmt.Errorf("%w: %d,%d must be blocked", errInvalidFill, r, c)
				}
				continue
			}
			v = strings.ToUpper(v)
			if len(v) != 1 || v[0] < 'A' || v[0] > 'Z' {
				return fmt.Errorf("%w: %d,%d holds %q", errInvalidFill, r, c, v)
			}
			row[c] = v
		}
	}
	for _, f := range req.FixedCells {
		if got := fill[f.Row][f.Col]; got != f.Char {
			return fmt.Errorf("%w: %d,%d is %q, fixed letter is %q", errInvalidFill, f.Row, f.Col, got, f.Char)
		}
	}
	return nil
}
