package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/google/uuid"
)

// CaptchaStore defines the interface for ephemeral puzzle storage
type CaptchaStore interface {
	Put(ctx context.Context, puzzle *models.CaptchaPuzzle, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.CaptchaPuzzle, error)
	Delete(ctx context.Context, id string) error
}

// CaptchaConfig holds configuration for the challenge verifier
type CaptchaConfig struct {
	GridSize int // base grid edge for easy puzzles
	Expiry   time.Duration
}

// CaptchaService issues slide puzzles and validates submitted solutions
type CaptchaService struct {
	store  CaptchaStore
	config CaptchaConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCaptchaService creates a new CaptchaService
func NewCaptchaService(store CaptchaStore, config CaptchaConfig, logger *slog.Logger) *CaptchaService {
	return &CaptchaService{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// gridSizeFor widens the grid one step per difficulty level
func (s *CaptchaService) gridSizeFor(difficulty models.CaptchaDifficulty) int {
	switch difficulty {
	case models.CaptchaMedium:
		return s.config.GridSize + 1
	case models.CaptchaHard:
		return s.config.GridSize + 2
	default:
		return s.config.GridSize
	}
}

// IssuePuzzle generates a shuffled slide puzzle and stores it for the
// configured expiry window
func (s *CaptchaService) IssuePuzzle(ctx context.Context, difficulty models.CaptchaDifficulty) (*models.CaptchaPuzzle, error) {
	if !models.ValidCaptchaDifficulty(difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", models.ErrValidation, difficulty)
	}

	size := s.gridSizeFor(difficulty)
	n := size * size

	solved := make([]int, n)
	for i := range solved {
		solved[i] = i
	}

	issued, err := shuffledPositions(n)
	if err != nil {
		return nil, fmt.Errorf("failed to shuffle puzzle: %w", err)
	}

	now := s.now()
	puzzle := &models.CaptchaPuzzle{
		ID:               uuid.NewString(),
		Difficulty:       difficulty,
		GridSize:         size,
		ExpectedSolution: solved,
		IssuedPositions:  issued,
		ExpiresAt:        now.Add(s.config.Expiry),
		CreatedAt:        now,
	}

	if err := s.store.Put(ctx, puzzle, s.config.Expiry); err != nil {
		return nil, fmt.Errorf("failed to store puzzle: %w", err)
	}

	s.logger.Info("captcha puzzle issued",
		slog.String("puzzle_id", puzzle.ID),
		slog.String("difficulty", string(difficulty)),
		slog.Int("grid_size", size))

	return puzzle, nil
}

// VerifySolution checks a submitted solution against the stored puzzle.
// The puzzle is destroyed on the first verification attempt, so a second
// submission for the same id always fails.
func (s *CaptchaService) VerifySolution(ctx context.Context, sol models.CaptchaSolution) (bool, error) {
	puzzle, err := s.store.Get(ctx, sol.PuzzleID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Single use: one verification consumes the puzzle either way
	if err := s.store.Delete(ctx, sol.PuzzleID); err != nil {
		s.logger.Warn("failed to delete consumed puzzle",
			slog.String("puzzle_id", sol.PuzzleID),
			slog.Any("error", err))
	}

	valid := puzzle.Matches(sol, s.now())
	if !valid {
		s.logger.Info("captcha verification failed", slog.String("puzzle_id", sol.PuzzleID))
	}
	return valid, nil
}

// shuffledPositions returns a uniform permutation of 0..n-1 with the last
// position held fixed as the solvability anchor
func shuffledPositions(n int) ([]int, error) {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}

	// Fisher-Yates over the first n-1 entries only
	for i := n - 2; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return nil, err
		}
		positions[i], positions[j] = positions[j], positions[i]
	}

	return positions, nil
}

func randomInt(max int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
