package models

import "time"

// CaptchaDifficulty selects the grid size of a slide puzzle
type CaptchaDifficulty string

const (
	CaptchaEasy   CaptchaDifficulty = "easy"
	CaptchaMedium CaptchaDifficulty = "medium"
	CaptchaHard   CaptchaDifficulty = "hard"
)

// ValidCaptchaDifficulty returns true for a recognized difficulty value
func ValidCaptchaDifficulty(d CaptchaDifficulty) bool {
	switch d {
	case CaptchaEasy, CaptchaMedium, CaptchaHard:
		return true
	}
	return false
}

// CaptchaPuzzle is an ephemeral slide-puzzle challenge. The last piece
// (the anchor) is never shuffled so the arrangement stays solvable.
type CaptchaPuzzle struct {
	ID               string            `json:"id"`
	Difficulty       CaptchaDifficulty `json:"difficulty"`
	GridSize         int               `json:"grid_size"`
	ExpectedSolution []int             `json:"expected_solution"`
	IssuedPositions  []int             `json:"issued_positions"`
	ExpiresAt        time.Time         `json:"expires_at"`
	CreatedAt        time.Time         `json:"created_at"`
}

// CaptchaSolution is a submitted answer for a previously issued puzzle
type CaptchaSolution struct {
	PuzzleID  string `json:"puzzle_id"`
	Positions []int  `json:"positions"`
}

// IsExpired checks if the puzzle window has closed
func (p *CaptchaPuzzle) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Matches validates a solution against the puzzle. It is a pure function
// of (puzzle, solution, now): expiry, puzzle id and the full position
// sequence must all check out. No partial credit.
func (p *CaptchaPuzzle) Matches(sol CaptchaSolution, now time.Time) bool {
	if p.IsExpired(now) {
		return false
	}
	if sol.PuzzleID != p.ID {
		return false
	}
	if len(sol.Positions) != len(p.ExpectedSolution) {
		return false
	}
	for i, pos := range sol.Positions {
		if pos != p.ExpectedSolution[i] {
			return false
		}
	}
	return true
}
