package rbac

// ScopeKind identifies the shape of an AccessScope
type ScopeKind string

const (
	// ScopeOrganizationWide places no restriction on visibility
	ScopeOrganizationWide ScopeKind = "organization_wide"
	// ScopeTeamRestricted limits visibility to a team set, plus always the
	// user's own records
	ScopeTeamRestricted ScopeKind = "team_restricted"
	// ScopeSelfOnly limits visibility to records the user owns or is an
	// explicit collaborator on
	ScopeSelfOnly ScopeKind = "self_only"
)

// AccessScope describes the visibility boundary for a user. It is a pure
// value computed from the user's snapshot; list handlers translate it into
// store predicates and must never widen it.
type AccessScope struct {
	Kind   ScopeKind `json:"kind"`
	UserID int64     `json:"userId"`

	// TeamIDs is the allowed team set; only populated for ScopeTeamRestricted
	TeamIDs []int64 `json:"teamIds,omitempty"`

	// HomeTeamID is the user's primary team regardless of Kind. Membership
	// alone authorizes an explicit filter on that team even under SelfOnly.
	HomeTeamID *int64 `json:"homeTeamId,omitempty"`
}

// OrganizationWide builds the unrestricted scope
func OrganizationWide(userID int64, homeTeamID *int64) AccessScope {
	return AccessScope{Kind: ScopeOrganizationWide, UserID: userID, HomeTeamID: homeTeamID}
}

// TeamRestricted builds a scope limited to the given team set
func TeamRestricted(userID int64, teamIDs []int64, homeTeamID *int64) AccessScope {
	return AccessScope{Kind: ScopeTeamRestricted, UserID: userID, TeamIDs: teamIDs, HomeTeamID: homeTeamID}
}

// SelfOnly builds the narrowest scope
func SelfOnly(userID int64, homeTeamID *int64) AccessScope {
	return AccessScope{Kind: ScopeSelfOnly, UserID: userID, HomeTeamID: homeTeamID}
}

// ScopeOf computes the access scope for a snapshot. Ineligible users get
// SelfOnly, never anything wider.
func ScopeOf(snap *Snapshot) AccessScope {
	if snap == nil {
		return SelfOnly(0, nil)
	}
	if !snap.Eligible() {
		return SelfOnly(snap.UserID, snap.TeamID)
	}
	switch snap.Kind {
	case RoleKindAdmin:
		return OrganizationWide(snap.UserID, snap.TeamID)
	case RoleKindTeamLead:
		return TeamRestricted(snap.UserID, snap.VisibleTeamIDs(), snap.TeamID)
	default:
		return SelfOnly(snap.UserID, snap.TeamID)
	}
}

// AllowsTeam reports whether an explicit filter on teamID stays inside this
// scope. Membership in the team always qualifies, whatever the scope kind.
func (s AccessScope) AllowsTeam(teamID int64) bool {
	if s.Kind == ScopeOrganizationWide {
		return true
	}
	if s.HomeTeamID != nil && *s.HomeTeamID == teamID {
		return true
	}
	if s.Kind == ScopeTeamRestricted {
		for _, id := range s.TeamIDs {
			if id == teamID {
				return true
			}
		}
	}
	return false
}

// Covers reports whether everything visible under other is also visible
// under s. Scope width is a total order: OrganizationWide covers
// TeamRestricted covers SelfOnly.
func (s AccessScope) Covers(other AccessScope) bool {
	if s.UserID != other.UserID {
		return false
	}
	switch s.Kind {
	case ScopeOrganizationWide:
		return true
	case ScopeTeamRestricted:
		if other.Kind == ScopeOrganizationWide {
			return false
		}
		if other.Kind == ScopeSelfOnly {
			return true
		}
		allowed := make(map[int64]struct{}, len(s.TeamIDs))
		for _, id := range s.TeamIDs {
			allowed[id] = struct{}{}
		}
		for _, id := range other.TeamIDs {
			if _, ok := allowed[id]; !ok {
				return false
			}
		}
		return true
	default:
		return other.Kind == ScopeSelfOnly
	}
}
