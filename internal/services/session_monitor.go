package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clinicboard/gatekeeper/internal/notify"
)

// SessionChecker is the validation authority a monitor polls
type SessionChecker interface {
	ValidateSession(ctx context.Context, sessionID string) bool
}

// SessionMonitor watches one live session on behalf of a client. It
// layers an event-driven fast path (revocation broadcast) over the
// periodic validation slow path; either one tearing down the session
// fires the onInvalid callback exactly once.
type SessionMonitor struct {
	sessionID string
	checker   SessionChecker
	broker    notify.Broker
	interval  time.Duration
	onInvalid func(reason string)
	logger    *slog.Logger

	once   sync.Once
	stopCh chan struct{}
}

// NewSessionMonitor creates a monitor for an issued session
func NewSessionMonitor(sessionID string, checker SessionChecker, broker notify.Broker, interval time.Duration, onInvalid func(reason string), logger *slog.Logger) *SessionMonitor {
	return &SessionMonitor{
		sessionID: sessionID,
		checker:   checker,
		broker:    broker,
		interval:  interval,
		onInvalid: onInvalid,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the watch loop until the session dies, Stop is called, or
// the context is cancelled. Blocking; run it in its own goroutine.
func (m *SessionMonitor) Start(ctx context.Context) {
	events, cancelSub, err := m.broker.Subscribe(ctx, m.sessionID)
	if err != nil {
		// Without the fast path the poll loop still bounds staleness
		m.logger.Warn("revocation subscription failed, relying on polling only",
			slog.String("session_id", m.sessionID),
			slog.Any("error", err))
		events = nil
		cancelSub = func() {}
	}
	defer cancelSub()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			valid, reason := m.runValidation(ctx, events)
			if !valid {
				m.teardown(reason)
				return
			}
		case event := <-events:
			m.teardown(event.Reason)
			return
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runValidation polls the authority, but keeps listening for revocation
// events while the round trip is in flight. A revocation observed
// mid-validation wins over a stale "still valid" answer arriving late.
func (m *SessionMonitor) runValidation(ctx context.Context, events <-chan notify.RevocationEvent) (bool, string) {
	vctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- m.checker.ValidateSession(vctx, m.sessionID)
	}()

	if events == nil {
		return <-resultCh, "validation_failed"
	}

	select {
	case valid := <-resultCh:
		return valid, "validation_failed"
	case event := <-events:
		cancel()
		return false, event.Reason
	}
}

// Stop halts the watch loop without invalidating the session (e.g. a
// clean process shutdown)
func (m *SessionMonitor) Stop() {
	close(m.stopCh)
}

func (m *SessionMonitor) teardown(reason string) {
	m.once.Do(func() {
		m.logger.Info("session no longer valid, tearing down",
			slog.String("session_id", m.sessionID),
			slog.String("reason", reason))
		if m.onInvalid != nil {
			m.onInvalid(reason)
		}
	})
}
