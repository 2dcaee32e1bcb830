// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventMarkupRejected is logged when libinjection flags free text as a script payload.
	EventMarkupRejected SecurityEventType = "markup_rejected"
	// EventLoginFailure is logged for a wrong email or password.
	EventLoginFailure SecurityEventType = "login_failure"
	// EventRateLimited is logged when a client exceeds the auth rate limit.
	EventRateLimited SecurityEventType = "rate_limited"
	// EventRequestDecision is the audit trail of administrator decisions on pickup requests.
	EventRequestDecision SecurityEventType = "request_decision"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// DecisionDetails describes one accept/reject decision.
type DecisionDetails struct {
	RequestID  uuid.UUID `json:"request_id"`
	DonationID uuid.UUID `json:"donation_id"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome"` // applied, conflict
}

type clientIPKey struct{}

// WithClientIP records the caller's address for events logged further down
// the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
// A nil auditor discards events.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogMarkupRejected records free text rejected as a cross-site scripting
// payload. The value itself is never logged.
func (a *SecurityAuditor) LogMarkupRejected(ctx context.Context, field string) {
	a.log(ctx, zap.WarnLevel, "Markup rejected in user input", EventMarkupRejected, "warning",
		map[string]string{"field": field},
		zap.String("field", field))
}

// LogLoginFailure records a failed login. Repeated failures for one email
// from one address indicate credential stuffing.
func (a *SecurityAuditor) LogLoginFailure(ctx context.Context, email string) {
	a.log(ctx, zap.WarnLevel, "Login failed", EventLoginFailure, "warning",
		map[string]string{"email": email},
		zap.String("email", email))
}

// LogRateLimited records a request refused by the rate limiter.
func (a *SecurityAuditor) LogRateLimited(ctx context.Context, path string) {
	a.log(ctx, zap.WarnLevel, "Rate limit exceeded", EventRateLimited, "warning",
		map[string]string{"path": path},
		zap.String("path", path))
}

// LogRequestDecision records an administrator's decision on a pickup request,
// including decisions that lost a race and changed nothing.
func (a *SecurityAuditor) LogRequestDecision(ctx context.Context, details DecisionDetails) {
	a.log(ctx, zap.InfoLevel, "Request decision", EventRequestDecision, "info", details,
		zap.String("request_id", details.RequestID.String()),
		zap.String("donation_id", details.DonationID.String()),
		zap.String("status", details.Status),
		zap.String("outcome", details.Outcome))
}

func (a *SecurityAuditor) log(ctx context.Context, level zapcore.Level, msg string,
	eventType SecurityEventType, severity string, details any, fields ...zap.Field) {
	if a == nil {
		return
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userIDFromContext(ctx),
		ClientIP:  ClientIPFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields = append(fields,
		zap.String("event_json", string(eventJSON)),
		zap.String("client_ip", event.ClientIP),
		zap.String("user_id", event.UserID),
		zap.String("severity", severity))

	if ce := a.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func userIDFromContext(ctx context.Context) string {
	claims, ok := auth.GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}
