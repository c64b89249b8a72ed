package audit

import (
	"context"
	"net/http"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// loggerKey is the context key for the audit logger
const loggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// noOpLogger discards every event
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (l *noOpLogger) Close() error                                { return nil }

// NewNoopLogger returns a logger that discards every event
func NewNoopLogger() Logger {
	return &noOpLogger{}
}

// NewEvent creates an event with the timestamp and metadata map initialized
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// DenialEvent builds an authz.denied event for a guard stage rejection
func DenialEvent(userID, orgID *int64, stage, kind, message string) *Event {
	event := NewEvent(EventTypeAuthzDenied, EventStatusDenied)
	event.UserID = userID
	event.OrganizationID = orgID
	event.Stage = stage
	event.DenialKind = kind
	event.Message = message
	return event
}

// BypassEvent builds an authz.bypass event attributing a platform admin's
// skipped guard stage.
func BypassEvent(userID, orgID *int64, stage string) *Event {
	event := NewEvent(EventTypeAuthzBypass, EventStatusSuccess)
	event.UserID = userID
	event.OrganizationID = orgID
	event.Stage = stage
	event.Message = "platform admin bypassed " + stage
	return event
}

// RoleEvent builds a role lifecycle event
func RoleEvent(eventType EventType, actorID *int64, orgID *int64, roleID string, message string) *Event {
	event := NewEvent(eventType, EventStatusSuccess)
	event.UserID = actorID
	event.OrganizationID = orgID
	event.ResourceType = "role"
	event.ResourceID = roleID
	event.Message = message
	return event
}

// AssignmentEvent builds an assignment lifecycle event
func AssignmentEvent(eventType EventType, actorID *int64, orgID *int64, targetUserID int64, roleID string, message string) *Event {
	event := NewEvent(eventType, EventStatusSuccess)
	event.UserID = actorID
	event.OrganizationID = orgID
	event.ResourceType = "assignment"
	event.ResourceID = roleID
	event.Metadata["target_user_id"] = targetUserID
	event.Message = message
	return event
}

// WithRequest stamps request context fields onto an event
func (e *Event) WithRequest(r *http.Request, requestID string) *Event {
	if r != nil {
		e.IPAddress = clientIP(r)
		e.UserAgent = r.UserAgent()
	}
	e.RequestID = requestID
	return e
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
