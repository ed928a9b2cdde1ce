package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Identity      string
	SessionID     string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits structured security audit events
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs login attempts and lockout transitions
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.baseAttrs("auth", event)
	al.emit(event.Success, attrs)
}

// LogSessionEvent logs session issuance, validation failures and revocations
func (al *AuditLogger) LogSessionEvent(event AuditEvent) {
	attrs := al.baseAttrs("session", event)
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	al.emit(event.Success, attrs)
}

// LogTokenEvent logs reset-token issuance and consumption
func (al *AuditLogger) LogTokenEvent(event AuditEvent) {
	attrs := al.baseAttrs("reset_token", event)
	al.emit(event.Success, attrs)
}

func (al *AuditLogger) baseAttrs(auditType string, event AuditEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Identity != "" {
		attrs = append(attrs, slog.String("identity", SanitizedEmail(event.Identity)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	return attrs
}

func (al *AuditLogger) emit(success bool, attrs []slog.Attr) {
	level := slog.LevelWarn
	if success {
		level = slog.LevelInfo
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
