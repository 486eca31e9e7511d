package tickets

import (
	"time"

	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Status is the ticket lifecycle state
type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority orders tickets for triage
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is a helpdesk request. TeamID is the owning team; RequesterID is
// who asked, CreatedBy who filed it (they differ when an agent files on a
// caller's behalf), AssigneeID who works it, FollowerIDs explicit
// collaborators.
type Ticket struct {
	ID          int64     `json:"id"`
	PublicID    string    `json:"publicId"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	TeamID      *int64    `json:"teamId"`
	RequesterID int64     `json:"requesterId"`
	CreatedBy   int64     `json:"createdBy"`
	AssigneeID  *int64    `json:"assigneeId"`
	FollowerIDs []int64   `json:"followerIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Ref projects the ticket onto the fields record-permission checks consume
func (t *Ticket) Ref() *rbac.RecordRef {
	requester := t.RequesterID
	createdBy := t.CreatedBy
	return &rbac.RecordRef{
		TeamID:      t.TeamID,
		CreatedBy:   &createdBy,
		AssignedTo:  t.AssigneeID,
		RequesterID: &requester,
		FollowerIDs: t.FollowerIDs,
	}
}

// Filter narrows a ticket listing. Every field is typed; there is no
// free-form field map, so an unknown filter cannot exist at runtime.
type Filter struct {
	Status     *Status
	Priority   *Priority
	TeamID     *int64
	AssigneeID *int64
	Search     string
}
