package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinicboard/gatekeeper/internal/models"
	"github.com/clinicboard/gatekeeper/internal/notify"
	"github.com/clinicboard/gatekeeper/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChecker answers ValidateSession from a flag without any backing store
type stubChecker struct {
	valid atomic.Bool
	calls atomic.Int64
}

func (c *stubChecker) ValidateSession(ctx context.Context, sessionID string) bool {
	c.calls.Add(1)
	return c.valid.Load()
}

type teardownRecorder struct {
	mu      sync.Mutex
	reasons []string
	done    chan struct{}
}

func newTeardownRecorder() *teardownRecorder {
	return &teardownRecorder{done: make(chan struct{})}
}

func (r *teardownRecorder) record(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	close(r.done)
}

func (r *teardownRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.reasons))
	copy(out, r.reasons)
	return out
}

func testMonitorLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestSessionMonitor_FastPathRevocation(t *testing.T) {
	checker := &stubChecker{}
	checker.valid.Store(true)
	broker := notify.NewMemoryBroker()
	recorder := newTeardownRecorder()

	// Poll interval is long so only the broadcast can trigger teardown in time
	monitor := services.NewSessionMonitor("sess-1", checker, broker, time.Minute, recorder.record, testMonitorLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)
	defer monitor.Stop()

	time.Sleep(20 * time.Millisecond)
	err := broker.Publish(ctx, notify.RevocationEvent{
		SessionID: "sess-1",
		Reason:    models.RevokeReasonAdmin,
		RevokedAt: time.Now(),
	})
	require.NoError(t, err)

	select {
	case <-recorder.done:
	case <-time.After(time.Second):
		t.Fatal("broadcast did not tear the session down")
	}
	assert.Equal(t, []string{models.RevokeReasonAdmin}, recorder.recorded())
}

func TestSessionMonitor_SlowPathPollDetectsInvalidSession(t *testing.T) {
	checker := &stubChecker{}
	checker.valid.Store(false)
	broker := notify.NewMemoryBroker()
	recorder := newTeardownRecorder()

	monitor := services.NewSessionMonitor("sess-2", checker, broker, 10*time.Millisecond, recorder.record, testMonitorLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)
	defer monitor.Stop()

	select {
	case <-recorder.done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not tear the session down")
	}
	assert.GreaterOrEqual(t, checker.calls.Load(), int64(1))
}

func TestSessionMonitor_HealthySessionKeepsRunning(t *testing.T) {
	checker := &stubChecker{}
	checker.valid.Store(true)
	broker := notify.NewMemoryBroker()
	recorder := newTeardownRecorder()

	monitor := services.NewSessionMonitor("sess-3", checker, broker, 10*time.Millisecond, recorder.record, testMonitorLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	time.Sleep(60 * time.Millisecond)
	monitor.Stop()

	assert.Empty(t, recorder.recorded(), "healthy session should not be torn down")
	assert.GreaterOrEqual(t, checker.calls.Load(), int64(2), "monitor should keep polling while healthy")
}

func TestSessionMonitor_TeardownFiresExactlyOnce(t *testing.T) {
	checker := &stubChecker{}
	checker.valid.Store(false)
	broker := notify.NewMemoryBroker()

	var count atomic.Int64
	done := make(chan struct{}, 1)
	monitor := services.NewSessionMonitor("sess-4", checker, broker, 5*time.Millisecond, func(reason string) {
		count.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
	}, testMonitorLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown never fired")
	}

	// A broadcast after teardown must not fire the callback again
	_ = broker.Publish(ctx, notify.RevocationEvent{SessionID: "sess-4", Reason: models.RevokeReasonLogout, RevokedAt: time.Now()})
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()

	assert.Equal(t, int64(1), count.Load())
}

func TestSessionMonitor_RevocationOutranksInFlightValidation(t *testing.T) {
	broker := notify.NewMemoryBroker()
	recorder := newTeardownRecorder()

	// Checker blocks long enough for a revocation to land mid-validation
	blocking := &blockingChecker{hold: 200 * time.Millisecond}
	monitor := services.NewSessionMonitor("sess-5", blocking, broker, 10*time.Millisecond, recorder.record, testMonitorLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)
	defer monitor.Stop()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, broker.Publish(ctx, notify.RevocationEvent{
		SessionID: "sess-5",
		Reason:    models.RevokeReasonAdmin,
		RevokedAt: time.Now(),
	}))

	select {
	case <-recorder.done:
	case <-time.After(time.Second):
		t.Fatal("revocation did not interrupt the in-flight check")
	}
	assert.Equal(t, []string{models.RevokeReasonAdmin}, recorder.recorded())
}

type blockingChecker struct {
	hold time.Duration
}

func (c *blockingChecker) ValidateSession(ctx context.Context, sessionID string) bool {
	select {
	case <-time.After(c.hold):
		return true
	case <-ctx.Done():
		return false
	}
}
