package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/clinicboard/gatekeeper/internal/notify"
	"github.com/clinicboard/gatekeeper/internal/services"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	sessions map[string]*models.Session
	getErr   error
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{sessions: make(map[string]*models.Session)}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *models.Session) error {
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MockSessionRepository) GetActiveByIdentity(ctx context.Context, identity string) (*models.Session, error) {
	now := time.Now()
	for _, s := range m.sessions {
		if s.Identity == identity && s.IsActive(now) {
			clone := *s
			return &clone, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) UpdateActivity(ctx context.Context, id string, lastActivity, expiresAt time.Time) error {
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return models.ErrNotFound
	}
	s.LastActivityAt = lastActivity
	s.ExpiresAt = expiresAt
	return nil
}

func (m *MockSessionRepository) Revoke(ctx context.Context, id string, at time.Time, reason string) error {
	s, ok := m.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.RevokedAt == nil {
		s.RevokedAt = &at
		s.RevokeReason = reason
	}
	return nil
}

func (m *MockSessionRepository) List(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range m.sessions {
		clone := *s
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for id, s := range m.sessions {
		if s.RevokedAt != nil || s.ExpiresAt.Before(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func testSessionService(repo *MockSessionRepository, broker notify.Broker) *services.SessionService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewSessionService(repo, broker, services.SessionConfig{
		IdleTimeout:     30 * time.Minute,
		PollInterval:    30 * time.Second,
		ValidateTimeout: 5 * time.Second,
	}, logger, pkglogger.NewAuditLogger(logger))
}

func TestSessionService_CreateAndValidate(t *testing.T) {
	repo := NewMockSessionRepository()
	service := testSessionService(repo, notify.NewMemoryBroker())
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "A@X.com")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.GreaterOrEqual(t, len(session.ID), 40, "session id should be long and opaque")
	assert.Equal(t, "a@x.com", session.Identity)

	assert.True(t, service.ValidateSession(ctx, session.ID))
}

func TestSessionService_ValidateExtendsIdleWindow(t *testing.T) {
	repo := NewMockSessionRepository()
	service := testSessionService(repo, notify.NewMemoryBroker())
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	// Age the row close to its deadline, then validate
	stored := repo.sessions[session.ID]
	stored.ExpiresAt = time.Now().Add(time.Minute)

	require.True(t, service.ValidateSession(ctx, session.ID))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), repo.sessions[session.ID].ExpiresAt, 2*time.Second)
}

func TestSessionService_ValidateRejectsUnknownRevokedExpired(t *testing.T) {
	repo := NewMockSessionRepository()
	service := testSessionService(repo, notify.NewMemoryBroker())
	ctx := context.Background()

	assert.False(t, service.ValidateSession(ctx, ""), "empty id")
	assert.False(t, service.ValidateSession(ctx, "unknown"), "unknown id")

	session, err := service.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, service.RevokeSession(ctx, session.ID, models.RevokeReasonAdmin))
	assert.False(t, service.ValidateSession(ctx, session.ID), "revoked id")

	other, err := service.CreateSession(ctx, "b@x.com")
	require.NoError(t, err)
	repo.sessions[other.ID].ExpiresAt = time.Now().Add(-time.Second)
	assert.False(t, service.ValidateSession(ctx, other.ID), "expired id")
}

func TestSessionService_ValidateFailsClosedOnStoreError(t *testing.T) {
	repo := NewMockSessionRepository()
	repo.getErr = models.ErrPersistence
	service := testSessionService(repo, notify.NewMemoryBroker())

	assert.False(t, service.ValidateSession(context.Background(), "any"))
}

func TestSessionService_CreateSupersedesPriorSession(t *testing.T) {
	repo := NewMockSessionRepository()
	broker := notify.NewMemoryBroker()
	service := testSessionService(repo, broker)
	ctx := context.Background()

	first, err := service.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	events, cancel, err := broker.Subscribe(ctx, first.ID)
	require.NoError(t, err)
	defer cancel()

	second, err := service.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	assert.False(t, service.ValidateSession(ctx, first.ID), "prior session is no longer honored")
	assert.True(t, service.ValidateSession(ctx, second.ID))

	select {
	case event := <-events:
		assert.Equal(t, models.RevokeReasonSuperseded, event.Reason)
	case <-time.After(time.Second):
		t.Fatal("superseded session holder was not notified")
	}
}

func TestSessionService_RevokeBroadcasts(t *testing.T) {
	repo := NewMockSessionRepository()
	broker := notify.NewMemoryBroker()
	service := testSessionService(repo, broker)
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	events, cancel, err := broker.Subscribe(ctx, session.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, service.RevokeSession(ctx, session.ID, models.RevokeReasonLogout))

	select {
	case event := <-events:
		assert.Equal(t, session.ID, event.SessionID)
		assert.Equal(t, models.RevokeReasonLogout, event.Reason)
	case <-time.After(time.Second):
		t.Fatal("revocation was not broadcast")
	}
}

func TestSessionService_RevokeUnknownSession(t *testing.T) {
	repo := NewMockSessionRepository()
	broker := notify.NewMemoryBroker()
	service := testSessionService(repo, broker)
	ctx := context.Background()

	events, cancel, err := broker.Subscribe(ctx, "no-such-session")
	require.NoError(t, err)
	defer cancel()

	err = service.RevokeSession(ctx, "no-such-session", models.RevokeReasonAdmin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	select {
	case event := <-events:
		t.Fatalf("unexpected broadcast for unknown session: %+v", event)
	default:
	}
}

func TestSessionService_CleanupExpired(t *testing.T) {
	repo := NewMockSessionRepository()
	service := testSessionService(repo, notify.NewMemoryBroker())
	ctx := context.Background()

	live, err := service.CreateSession(ctx, "live@x.com")
	require.NoError(t, err)

	gone, err := service.CreateSession(ctx, "gone@x.com")
	require.NoError(t, err)
	require.NoError(t, service.RevokeSession(ctx, gone.ID, models.RevokeReasonLogout))

	removed, err := service.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Contains(t, repo.sessions, live.ID)
	assert.NotContains(t, repo.sessions, gone.ID)
}
