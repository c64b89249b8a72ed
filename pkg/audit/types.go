package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Role lifecycle events
	EventTypeRoleCreated EventType = "role.created"
	EventTypeRoleUpdated EventType = "role.updated"
	EventTypeRoleDeleted EventType = "role.deleted"

	// Assignment events
	EventTypeRoleAssigned       EventType = "assignment.assigned"
	EventTypeRoleDeactivated    EventType = "assignment.deactivated"
	EventTypeBulkRolesAssigned  EventType = "assignment.bulk_assigned"

	// Authorization events
	EventTypeAuthzDenied EventType = "authz.denied"
	EventTypeAuthzBypass EventType = "authz.bypass"

	// Token events
	EventTypeTokenCreated  EventType = "auth.token_created"
	EventTypeTokenRevoked  EventType = "auth.token_revoked"
	EventTypeTokenRejected EventType = "auth.token_rejected"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	Username       string `json:"username,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// Authorization context. Stage names the guard stage that produced the
	// event; DenialKind is the typed denial for authz.denied events.
	Stage      string `json:"stage,omitempty"`
	DenialKind string `json:"denial_kind,omitempty"`

	// Resource information
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID         *int64
	OrganizationID *int64

	EventTypes []EventType
	Status     *EventStatus
	Stage      string

	ResourceType string
	ResourceID   string

	Limit  int
	Offset int
}
