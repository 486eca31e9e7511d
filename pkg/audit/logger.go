package audit

import (
	"context"
	"time"

	"github.com/opendesk-io/opendesk/pkg/contextkeys"
	"github.com/opendesk-io/opendesk/pkg/observability"
)

// Logger is the interface for audit event emission. Implementations must be
// safe for concurrent use and must never block the caller on downstream
// persistence.
type Logger interface {
	// Log emits a single audit event
	Log(ctx context.Context, event Event)

	// LogDecision emits an authorization decision record
	LogDecision(ctx context.Context, userID int64, resource, action, permission string, allowed bool, reason string)

	// LogAdminAction emits an administrative mutation record
	LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetID string, message string)
}

// SlogLogger emits audit events as structured log lines through the shared
// observability logger.
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates an audit logger writing to the given logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("component", "audit")}
}

// Log emits a single audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.RequestID(ctx)
	}

	entry := l.logger.WithFields(map[string]interface{}{
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"user_id":    event.UserID,
	})
	if event.RequestID != "" {
		entry = entry.WithField("request_id", event.RequestID)
	}
	if event.Resource != "" {
		entry = entry.WithField("resource", event.Resource)
	}
	if event.Action != "" {
		entry = entry.WithField("action", event.Action)
	}
	if event.Permission != "" {
		entry = entry.WithField("permission", event.Permission)
	}
	if event.TargetID != "" {
		entry = entry.WithField("target_id", event.TargetID)
	}
	if event.Reason != "" {
		entry = entry.WithField("reason", event.Reason)
	}

	if event.Status == EventStatusFailure {
		entry.Error(event.Message)
		return
	}
	entry.Info(event.Message)
}

// LogDecision emits an authorization decision record
func (l *SlogLogger) LogDecision(ctx context.Context, userID int64, resource, action, permission string, allowed bool, reason string) {
	status := EventStatusSuccess
	eventType := EventTypePermissionCheck
	message := "permission granted"
	if !allowed {
		status = EventStatusDenied
		eventType = EventTypeAccessDenied
		message = "permission denied"
	}

	l.Log(ctx, Event{
		EventType:  eventType,
		Status:     status,
		UserID:     userID,
		Resource:   resource,
		Action:     action,
		Permission: permission,
		Reason:     reason,
		Message:    message,
	})
}

// LogAdminAction emits an administrative mutation record
func (l *SlogLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetID string, message string) {
	l.Log(ctx, Event{
		EventType: eventType,
		Status:    EventStatusSuccess,
		UserID:    actorID,
		TargetID:  targetID,
		Message:   message,
	})
}

// NopLogger discards all events. Used in tests and as the default when no
// audit sink is configured.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event Event) {}
func (NopLogger) LogDecision(ctx context.Context, userID int64, resource, action, permission string, allowed bool, reason string) {
}
func (NopLogger) LogAdminAction(ctx context.Context, eventType EventType, actorID int64, targetID string, message string) {
}
