package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
)

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	locked          bool
	record          *models.SecurityRecord
	checkErr        error
	failedResult    *models.SecurityRecord
	failuresLogged  []string
	successesLogged []string
	resetsLogged    []string
	resetErr        error
}

func (m *MockLockoutService) CheckLockout(ctx context.Context, identity string) (bool, *models.SecurityRecord, error) {
	return m.locked, m.record, m.checkErr
}

func (m *MockLockoutService) RecordFailedAttempt(ctx context.Context, identity string) (*models.SecurityRecord, error) {
	m.failuresLogged = append(m.failuresLogged, identity)
	return m.failedResult, nil
}

func (m *MockLockoutService) RecordSuccessfulAttempt(ctx context.Context, identity string) error {
	m.successesLogged = append(m.successesLogged, identity)
	return nil
}

func (m *MockLockoutService) Reset(ctx context.Context, identity string) error {
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resetsLogged = append(m.resetsLogged, identity)
	return nil
}

// MockCaptchaVerifier implements CaptchaVerifierInterface for testing
type MockCaptchaVerifier struct {
	solved   bool
	verified []models.CaptchaSolution
}

func (m *MockCaptchaVerifier) VerifySolution(ctx context.Context, sol models.CaptchaSolution) (bool, error) {
	m.verified = append(m.verified, sol)
	return m.solved, nil
}

// MockSessionIssuer implements SessionIssuerInterface for testing
type MockSessionIssuer struct {
	created []string
}

func (m *MockSessionIssuer) CreateSession(ctx context.Context, identity string) (*models.Session, error) {
	m.created = append(m.created, identity)
	return &models.Session{
		ID:        "test-session-id",
		Identity:  identity,
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}, nil
}

// MockCredentialVerifier implements CredentialVerifier for testing
type MockCredentialVerifier struct {
	valid    bool
	checked  []string
	updated  []string
	checkErr error
}

func (m *MockCredentialVerifier) VerifyCredentials(ctx context.Context, email, password string) (bool, error) {
	m.checked = append(m.checked, email)
	return m.valid, m.checkErr
}

func (m *MockCredentialVerifier) UpdatePassword(ctx context.Context, email, newPassword string) error {
	m.updated = append(m.updated, email)
	return nil
}

func newAuthHandlerForTest(lockout *MockLockoutService, captcha *MockCaptchaVerifier, sessions *MockSessionIssuer, verifier *MockCredentialVerifier) *AuthHandler {
	return NewAuthHandler(lockout, captcha, sessions, verifier, 2)
}

func TestAuthHandler_Login_Success(t *testing.T) {
	lockout := &MockLockoutService{}
	sessions := &MockSessionIssuer{}
	verifier := &MockCredentialVerifier{valid: true}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, sessions, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "A@X.com", Password: "correct-horse"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp LoginResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "test-session-id", resp.SessionID)
	assert.Equal(t, []string{"a@x.com"}, verifier.checked, "email should be normalized before verification")
	assert.Equal(t, []string{"a@x.com"}, lockout.successesLogged)
	assert.Equal(t, []string{"a@x.com"}, sessions.created)
}

func TestAuthHandler_Login_LockedIdentityShortCircuits(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	lockout := &MockLockoutService{
		locked: true,
		record: &models.SecurityRecord{Identity: "a@x.com", LockoutUntil: &until, ConsecutiveLockouts: 2},
	}
	verifier := &MockCredentialVerifier{valid: true}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "a@x.com", Password: "correct-horse"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 423, "account_locked")
	assert.Empty(t, verifier.checked, "credentials must not be inspected while locked")
}

func TestAuthHandler_Login_WrongPasswordRecordsFailure(t *testing.T) {
	lockout := &MockLockoutService{}
	verifier := &MockCredentialVerifier{valid: false}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "a@x.com", Password: "wrong"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 401, "unauthorized")
	assert.Equal(t, []string{"a@x.com"}, lockout.failuresLogged)
	assert.Empty(t, lockout.successesLogged)
}

func TestAuthHandler_Login_ThresholdFailureReturnsLocked(t *testing.T) {
	until := time.Now().Add(time.Minute)
	lockout := &MockLockoutService{
		failedResult: &models.SecurityRecord{Identity: "a@x.com", LockoutUntil: &until, ConsecutiveLockouts: 1},
	}
	verifier := &MockCredentialVerifier{valid: false}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "a@x.com", Password: "wrong"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 423, "account_locked")
}

func TestAuthHandler_Login_CaptchaRequiredAfterRepeatedFailures(t *testing.T) {
	lockout := &MockLockoutService{
		record: &models.SecurityRecord{Identity: "a@x.com", FailedLoginAttempts: 2},
	}
	verifier := &MockCredentialVerifier{valid: true}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "a@x.com", Password: "correct-horse"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 403, "captcha_required")
	assert.Empty(t, verifier.checked)
}

func TestAuthHandler_Login_FailedCaptchaBlocksVerifier(t *testing.T) {
	lockout := &MockLockoutService{
		record: &models.SecurityRecord{Identity: "a@x.com", FailedLoginAttempts: 2},
	}
	captcha := &MockCaptchaVerifier{solved: false}
	verifier := &MockCredentialVerifier{valid: true}
	handler := newAuthHandlerForTest(lockout, captcha, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{
		Email:            "a@x.com",
		Password:         "correct-horse",
		CaptchaID:        "puzzle-1",
		CaptchaPositions: []int{2, 0, 1},
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 403, "captcha_failed")
	assert.Len(t, captcha.verified, 1)
	assert.Empty(t, verifier.checked)
}

func TestAuthHandler_Login_SolvedCaptchaAdmitsAttempt(t *testing.T) {
	lockout := &MockLockoutService{
		record: &models.SecurityRecord{Identity: "a@x.com", FailedLoginAttempts: 2},
	}
	captcha := &MockCaptchaVerifier{solved: true}
	verifier := &MockCredentialVerifier{valid: true}
	handler := newAuthHandlerForTest(lockout, captcha, &MockSessionIssuer{}, verifier)

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{
		Email:            "a@x.com",
		Password:         "correct-horse",
		CaptchaID:        "puzzle-1",
		CaptchaPositions: []int{0, 1, 2},
	})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp LoginResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.NotEmpty(t, resp.SessionID)
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	handler := newAuthHandlerForTest(&MockLockoutService{}, &MockCaptchaVerifier{}, &MockSessionIssuer{}, &MockCredentialVerifier{})

	req := NewTestRequest(t, "POST", "/auth/login", LoginRequest{Email: "not-an-email", Password: "x"})
	w := httptest.NewRecorder()
	handler.Login(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}

func TestAuthHandler_LockoutStatus(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	lockout := &MockLockoutService{
		locked: true,
		record: &models.SecurityRecord{
			Identity:            "a@x.com",
			LockoutUntil:        &until,
			ConsecutiveLockouts: 3,
		},
	}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, &MockCredentialVerifier{})

	req := httptest.NewRequest("GET", "/auth/lockout?identity=a@x.com", nil)
	w := httptest.NewRecorder()
	handler.LockoutStatus(w, req)

	var resp LockoutStatusResponse
	AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Locked)
	assert.Greater(t, resp.RemainingSeconds, int64(0))
}

func TestAuthHandler_LockoutStatus_OmitsAttemptCounters(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	lockout := &MockLockoutService{
		locked: true,
		record: &models.SecurityRecord{
			Identity:            "a@x.com",
			FailedLoginAttempts: 2,
			LockoutUntil:        &until,
			ConsecutiveLockouts: 3,
		},
	}
	handler := newAuthHandlerForTest(lockout, &MockCaptchaVerifier{}, &MockSessionIssuer{}, &MockCredentialVerifier{})

	req := httptest.NewRequest("GET", "/auth/lockout?identity=a@x.com", nil)
	w := httptest.NewRecorder()
	handler.LockoutStatus(w, req)

	var body map[string]any
	AssertJSONResponse(t, w, 200, &body)
	assert.NotContains(t, body, "failed_attempts")
	assert.NotContains(t, body, "consecutive_lockouts")
}

func TestAuthHandler_LockoutStatus_RequiresIdentity(t *testing.T) {
	handler := newAuthHandlerForTest(&MockLockoutService{}, &MockCaptchaVerifier{}, &MockSessionIssuer{}, &MockCredentialVerifier{})

	req := httptest.NewRequest("GET", "/auth/lockout", nil)
	w := httptest.NewRecorder()
	handler.LockoutStatus(w, req)

	AssertErrorResponse(t, w, 400, "bad_request")
}
