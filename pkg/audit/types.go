package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypePermissionCheck EventType = "authz.permission_check"
	EventTypeAccessDenied    EventType = "authz.access_denied"
	EventTypeScopeConflict   EventType = "authz.scope_conflict"
	EventTypeRoleChange      EventType = "authz.role_change"
	EventTypeTeamChange      EventType = "authz.team_change"
	EventTypeLeaderChange    EventType = "authz.leader_change"

	// Admin events
	EventTypeUserDeactivate EventType = "admin.user_deactivate"
	EventTypeUserReactivate EventType = "admin.user_reactivate"

	// Session events
	EventTypeSessionRevoke EventType = "auth.session_revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusDenied  EventStatus = "denied"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit record. The engine and services emit these; a
// collaborating audit service owns persistence.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID    int64  `json:"user_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Subject
	Resource   string `json:"resource,omitempty"`
	Action     string `json:"action,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Permission string `json:"permission,omitempty"`

	// Outcome detail
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}
