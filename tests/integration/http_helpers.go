package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/clinicboard/gatekeeper/internal/database"
	"github.com/clinicboard/gatekeeper/internal/handlers"
	middlewareCustom "github.com/clinicboard/gatekeeper/internal/middleware"
	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/clinicboard/gatekeeper/internal/notify"
	"github.com/clinicboard/gatekeeper/internal/routes"
	"github.com/clinicboard/gatekeeper/internal/services"
	pkglogger "github.com/clinicboard/gatekeeper/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To    string
	Token string
}

// CapturingEmailService records reset emails instead of sending them
type CapturingEmailService struct {
	mu   sync.Mutex
	sent []SentEmail
}

// SendPasswordResetEmail records the email and the plain token it carries
func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{To: email, Token: token})
	return nil
}

// LastEmail returns the most recent captured email
func (m *CapturingEmailService) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	last := m.sent[len(m.sent)-1]
	return &last
}

// StubCredentials is a fixed credential table standing in for the
// upstream identity provider
type StubCredentials struct {
	mu        sync.Mutex
	passwords map[string]string
}

func NewStubCredentials() *StubCredentials {
	return &StubCredentials{passwords: make(map[string]string)}
}

func (s *StubCredentials) Set(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[email] = password
}

func (s *StubCredentials) VerifyCredentials(ctx context.Context, email, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.passwords[email]
	return ok && stored == password, nil
}

func (s *StubCredentials) UpdatePassword(ctx context.Context, email, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[email] = newPassword
	return nil
}

// MemoryCaptchaStore keeps puzzles in a map so integration tests need no redis
type MemoryCaptchaStore struct {
	mu      sync.Mutex
	puzzles map[string]*models.CaptchaPuzzle
}

func NewMemoryCaptchaStore() *MemoryCaptchaStore {
	return &MemoryCaptchaStore{puzzles: make(map[string]*models.CaptchaPuzzle)}
}

func (s *MemoryCaptchaStore) Put(ctx context.Context, puzzle *models.CaptchaPuzzle, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *puzzle
	s.puzzles[puzzle.ID] = &clone
	return nil
}

func (s *MemoryCaptchaStore) Get(ctx context.Context, id string) (*models.CaptchaPuzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	puzzle, ok := s.puzzles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *puzzle
	return &clone, nil
}

func (s *MemoryCaptchaStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.puzzles, id)
	return nil
}

// TestEnv bundles the full HTTP stack wired against a real database
type TestEnv struct {
	Server      *httptest.Server
	Router      chi.Router
	Email       *CapturingEmailService
	Credentials *StubCredentials
	Broker      *notify.MemoryBroker
	Lockouts    *services.LockoutService
	Sessions    *services.SessionService
	ResetTokens *services.ResetTokenService
}

// SetupTestEnv wires repositories, services, handlers and routes exactly
// the way cmd/api does, but with in-process doubles for email, captcha
// storage, credential checks and revocation broadcast.
func SetupTestEnv(db *database.DB, captchaStore services.CaptchaStore) *TestEnv {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	audit := pkglogger.NewAuditLogger(logger)

	securityRecordRepo, resetTokenRepo, sessionRepo := InitializeRepositories(db)

	broker := notify.NewMemoryBroker()
	email := &CapturingEmailService{}
	credentials := NewStubCredentials()

	lockoutService := services.NewLockoutService(securityRecordRepo, services.LockoutConfig{
		MaxFailedAttempts: 3,
		LockoutDurations: []time.Duration{
			1 * time.Minute, 10 * time.Minute, 30 * time.Minute, 1 * time.Hour, 24 * time.Hour,
		},
		FailMode:        services.FailOpen,
		RecordRetention: 30 * 24 * time.Hour,
	}, logger, audit)

	captchaService := services.NewCaptchaService(captchaStore, services.CaptchaConfig{
		GridSize: 3,
		Expiry:   5 * time.Minute,
	}, logger)

	resetTokenService := services.NewResetTokenService(resetTokenRepo, email, logger, audit, 3*time.Minute)

	sessionService := services.NewSessionService(sessionRepo, broker, services.SessionConfig{
		IdleTimeout:     30 * time.Minute,
		PollInterval:    30 * time.Second,
		ValidateTimeout: 5 * time.Second,
	}, logger, audit)

	authHandler := handlers.NewAuthHandler(lockoutService, captchaService, sessionService, credentials, 2)
	captchaHandler := handlers.NewCaptchaHandler(captchaService)
	resetHandler := handlers.NewResetHandler(resetTokenService, credentials)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	adminHandler := handlers.NewAdminHandler(sessionService, lockoutService)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, authHandler, captchaHandler, resetHandler, sessionHandler, adminHandler, sessionService)

	return &TestEnv{
		Server:      httptest.NewServer(router),
		Router:      router,
		Email:       email,
		Credentials: credentials,
		Broker:      broker,
		Lockouts:    lockoutService,
		Sessions:    sessionService,
		ResetTokens: resetTokenService,
	}
}

// Close shuts the test server down
func (env *TestEnv) Close() {
	env.Server.Close()
}

// PostJSON sends a JSON POST to the test server and decodes the response
func (env *TestEnv) PostJSON(path string, body interface{}, headers map[string]string) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return resp, data, nil
}

// GetJSON sends a GET to the test server and decodes the response
func (env *TestEnv) GetJSON(path string, headers map[string]string) (*http.Response, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	return resp, data, nil
}
