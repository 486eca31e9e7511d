package rbac

import "sort"

// Resource represents a resource type in the system
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceTeams         Resource = "teams"
	ResourceRoles         Resource = "roles"
	ResourceTickets       Resource = "tickets"
	ResourceAuditLogs     Resource = "audit_logs"
	ResourceKnowledgeBase Resource = "knowledge_base"
	ResourceSLAPolicies   Resource = "sla_policies"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"

	// ActionManage grants every other action on the resource
	ActionManage Action = "manage"
)

// Grant represents a single permission grant (action on a resource type)
type Grant struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the canonical "resource:action" form of the grant
func (g Grant) String() string {
	return string(g.Resource) + ":" + string(g.Action)
}

// PermissionString returns the canonical form of an (action, resource) pair,
// used in denial responses and audit records
func PermissionString(resource Resource, action Action) string {
	return Grant{Resource: resource, Action: action}.String()
}

// GrantSet is the resolved grant set of a role. Duplicate grants collapse by
// construction.
type GrantSet map[Grant]struct{}

// NewGrantSet builds a GrantSet from a grant list
func NewGrantSet(grants []Grant) GrantSet {
	set := make(GrantSet, len(grants))
	for _, g := range grants {
		set[g] = struct{}{}
	}
	return set
}

// Allows reports whether the set contains (action, resource) directly or via
// the manage wildcard on that resource.
func (s GrantSet) Allows(action Action, resource Resource) bool {
	if _, ok := s[Grant{Resource: resource, Action: action}]; ok {
		return true
	}
	_, ok := s[Grant{Resource: resource, Action: ActionManage}]
	return ok
}

// List returns the grants in deterministic order
func (s GrantSet) List() []Grant {
	grants := make([]Grant, 0, len(s))
	for g := range s {
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].String() < grants[j].String()
	})
	return grants
}

// RoleKind is the closed role taxonomy all narrowing logic switches on.
// It is resolved once from the stored role name at the store boundary;
// nothing downstream compares role-name strings.
type RoleKind int

const (
	// RoleKindNone means no role is assigned; every check fails closed
	RoleKindNone RoleKind = iota
	// RoleKindAgent is the base employee role, restricted to own records
	RoleKindAgent
	// RoleKindTeamLead sees records of led teams and the primary team
	RoleKindTeamLead
	// RoleKindAdmin has organization-wide visibility
	RoleKindAdmin
)

func (k RoleKind) String() string {
	switch k {
	case RoleKindAdmin:
		return "admin"
	case RoleKindTeamLead:
		return "team_lead"
	case RoleKindAgent:
		return "agent"
	default:
		return "none"
	}
}

// Well-known role names as stored in the role table
const (
	RoleNameAdmin    = "Admin/Manager"
	RoleNameTeamLead = "Team Leader"
	RoleNameEmployee = "User/Employee"
)

// KindOfRole resolves a stored role name to its RoleKind. Unrecognized role
// names resolve to RoleKindAgent: a custom role keeps its grant set but
// never gains record visibility beyond its own records.
func KindOfRole(name string) RoleKind {
	switch name {
	case RoleNameAdmin:
		return RoleKindAdmin
	case RoleNameTeamLead:
		return RoleKindTeamLead
	default:
		return RoleKindAgent
	}
}

// Reason classifies the outcome of a permission decision
type Reason string

const (
	ReasonOK             Reason = "OK"
	ReasonNoRole         Reason = "NO_ROLE"
	ReasonRoleLacksGrant Reason = "ROLE_LACKS_GRANT"
	ReasonTeamMismatch   Reason = "TEAM_MISMATCH"
	ReasonRecordNotOwned Reason = "RECORD_NOT_OWNED"
)

// Decision is the result of a record-level permission check
type Decision struct {
	Allowed            bool   `json:"allowed"`
	Reason             Reason `json:"reason"`
	RequiredPermission string `json:"requiredPermission"`
}

// RecordRef carries the ownership attributes of a record under check.
// Which fields are populated is resource-specific; nil fields simply never
// match.
type RecordRef struct {
	TeamID      *int64  `json:"teamId,omitempty"`
	CreatedBy   *int64  `json:"createdBy,omitempty"`
	AssignedTo  *int64  `json:"assignedTo,omitempty"`
	RequesterID *int64  `json:"requesterId,omitempty"`
	FollowerIDs []int64 `json:"followerIds,omitempty"`
}

// OwnedBy reports whether the record belongs to the user personally
func (r *RecordRef) OwnedBy(userID int64) bool {
	if r == nil {
		return false
	}
	for _, owner := range []*int64{r.CreatedBy, r.AssignedTo, r.RequesterID} {
		if owner != nil && *owner == userID {
			return true
		}
	}
	return false
}

// SharedWith reports whether the user is an explicit collaborator on the
// record (e.g. a ticket follower)
func (r *RecordRef) SharedWith(userID int64) bool {
	if r == nil {
		return false
	}
	for _, id := range r.FollowerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Snapshot is a user's resolved authorization state: role, grants, team
// membership and leaderships, taken at a single point in time. It holds no
// store handles and is safe to cache and pass across goroutines.
type Snapshot struct {
	UserID     int64
	RoleID     *int64
	RoleName   string
	Kind       RoleKind
	Grants     GrantSet
	TeamID     *int64
	LedTeamIDs []int64
	IsActive   bool
}

// Eligible reports whether the user can hold any permission at all.
// Inactive, deleted, and role-less users fail closed everywhere.
func (s *Snapshot) Eligible() bool {
	return s != nil && s.IsActive && s.Kind != RoleKindNone && s.RoleID != nil
}

// VisibleTeamIDs returns the union of the primary team and led teams,
// deduplicated and sorted.
func (s *Snapshot) VisibleTeamIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.LedTeamIDs)+1)
	if s.TeamID != nil {
		seen[*s.TeamID] = struct{}{}
	}
	for _, id := range s.LedTeamIDs {
		seen[id] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
