package directory

import (
	"time"

	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// User is a helpdesk account. RoleID and TeamID are nullable: a user with
// no role holds no permissions, and a user with no team is outside every
// team-restricted scope.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	RoleID    *int64     `json:"roleId"`
	TeamID    *int64     `json:"teamId"`
	IsActive  bool       `json:"isActive"`
	IsDeleted bool       `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-"`
}

// Role is a named grant bundle. Grants are stored as a JSON array in the
// roles table and resolved into a set at snapshot time.
type Role struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Kind      rbac.RoleKind `json:"kind"`
	Grants    []rbac.Grant `json:"grants"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Team is an organizational unit tickets and users belong to
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TeamLeadership records that a user leads a team. A team leader's access
// scope spans their own team plus every team they lead.
type TeamLeadership struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"teamId"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
