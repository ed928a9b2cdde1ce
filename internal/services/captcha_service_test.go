package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/clinicboard/gatekeeper/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCaptchaStore implements CaptchaStore for testing
type MockCaptchaStore struct {
	puzzles map[string]*models.CaptchaPuzzle
	getErr  error
}

func NewMockCaptchaStore() *MockCaptchaStore {
	return &MockCaptchaStore{puzzles: make(map[string]*models.CaptchaPuzzle)}
}

func (m *MockCaptchaStore) Put(ctx context.Context, puzzle *models.CaptchaPuzzle, ttl time.Duration) error {
	m.puzzles[puzzle.ID] = puzzle
	return nil
}

func (m *MockCaptchaStore) Get(ctx context.Context, id string) (*models.CaptchaPuzzle, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	puzzle, ok := m.puzzles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return puzzle, nil
}

func (m *MockCaptchaStore) Delete(ctx context.Context, id string) error {
	delete(m.puzzles, id)
	return nil
}

func testCaptchaService(store *MockCaptchaStore) *services.CaptchaService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewCaptchaService(store, services.CaptchaConfig{
		GridSize: 3,
		Expiry:   5 * time.Minute,
	}, logger)
}

func TestCaptchaService_IssuePuzzle(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)

	puzzle, err := service.IssuePuzzle(context.Background(), models.CaptchaEasy)
	require.NoError(t, err)

	assert.Equal(t, 3, puzzle.GridSize)
	assert.Len(t, puzzle.ExpectedSolution, 9)
	assert.Len(t, puzzle.IssuedPositions, 9)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), puzzle.ExpiresAt, 2*time.Second)
	assert.Contains(t, store.puzzles, puzzle.ID)

	// Canonical order is always 0..n-1
	for i, pos := range puzzle.ExpectedSolution {
		assert.Equal(t, i, pos)
	}
}

func TestCaptchaService_AnchorStaysFixed(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)

	// The last piece anchors solvability on every issuance
	for i := 0; i < 20; i++ {
		puzzle, err := service.IssuePuzzle(context.Background(), models.CaptchaEasy)
		require.NoError(t, err)
		assert.Equal(t, 8, puzzle.IssuedPositions[8], "anchor position must not be shuffled")
	}
}

func TestCaptchaService_IssuedPositionsAreAPermutation(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)

	puzzle, err := service.IssuePuzzle(context.Background(), models.CaptchaEasy)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, pos := range puzzle.IssuedPositions {
		assert.False(t, seen[pos], "position %d appears twice", pos)
		assert.GreaterOrEqual(t, pos, 0)
		assert.Less(t, pos, 9)
		seen[pos] = true
	}
	assert.Len(t, seen, 9)
}

func TestCaptchaService_DifficultyWidensGrid(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)
	ctx := context.Background()

	medium, err := service.IssuePuzzle(ctx, models.CaptchaMedium)
	require.NoError(t, err)
	assert.Equal(t, 4, medium.GridSize)
	assert.Len(t, medium.IssuedPositions, 16)

	hard, err := service.IssuePuzzle(ctx, models.CaptchaHard)
	require.NoError(t, err)
	assert.Equal(t, 5, hard.GridSize)
	assert.Len(t, hard.IssuedPositions, 25)
}

func TestCaptchaService_RejectsUnknownDifficulty(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)

	_, err := service.IssuePuzzle(context.Background(), "nightmare")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCaptchaService_VerifyCanonicalOrder(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)
	ctx := context.Background()

	puzzle, err := service.IssuePuzzle(ctx, models.CaptchaEasy)
	require.NoError(t, err)

	// Canonical order validates regardless of the shuffled presentation
	valid, err := service.VerifySolution(ctx, models.CaptchaSolution{
		PuzzleID:  puzzle.ID,
		Positions: []int{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCaptchaService_VerifyIsSingleUse(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)
	ctx := context.Background()

	puzzle, err := service.IssuePuzzle(ctx, models.CaptchaEasy)
	require.NoError(t, err)

	sol := models.CaptchaSolution{PuzzleID: puzzle.ID, Positions: []int{0, 1, 2, 3, 4, 5, 6, 7, 8}}

	valid, err := service.VerifySolution(ctx, sol)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = service.VerifySolution(ctx, sol)
	require.NoError(t, err)
	assert.False(t, valid, "second submission for the same puzzle must fail")
}

func TestCaptchaService_VerifyWrongOrderConsumesPuzzle(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)
	ctx := context.Background()

	puzzle, err := service.IssuePuzzle(ctx, models.CaptchaEasy)
	require.NoError(t, err)

	valid, err := service.VerifySolution(ctx, models.CaptchaSolution{
		PuzzleID:  puzzle.ID,
		Positions: []int{8, 7, 6, 5, 4, 3, 2, 1, 0},
	})
	require.NoError(t, err)
	assert.False(t, valid)
	assert.NotContains(t, store.puzzles, puzzle.ID, "a failed attempt still consumes the puzzle")
}

func TestCaptchaService_VerifyExpiredPuzzle(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)
	ctx := context.Background()

	store.puzzles["stale"] = &models.CaptchaPuzzle{
		ID:               "stale",
		GridSize:         3,
		ExpectedSolution: []int{0, 1, 2, 3, 4, 5, 6, 7, 8},
		ExpiresAt:        time.Now().Add(-time.Second),
	}

	valid, err := service.VerifySolution(ctx, models.CaptchaSolution{
		PuzzleID:  "stale",
		Positions: []int{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestCaptchaService_VerifyUnknownPuzzle(t *testing.T) {
	store := NewMockCaptchaStore()
	service := testCaptchaService(store)

	valid, err := service.VerifySolution(context.Background(), models.CaptchaSolution{
		PuzzleID:  "nope",
		Positions: []int{0, 1, 2},
	})
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestCaptchaService_VerifyStoreErrorFailsClosed(t *testing.T) {
	store := NewMockCaptchaStore()
	store.getErr = models.ErrPersistence
	service := testCaptchaService(store)

	valid, err := service.VerifySolution(context.Background(), models.CaptchaSolution{PuzzleID: "x"})
	assert.Error(t, err)
	assert.False(t, valid)
}
