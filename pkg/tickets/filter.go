package tickets

import (
	"fmt"
	"strings"

	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Predicate is a rendered WHERE clause with positional arguments. It is
// produced only by BuildPredicate, so every ticket query carries the scope
// restriction by construction.
type Predicate struct {
	conditions []string
	args       []any
}

// SQL returns the WHERE clause body, "TRUE" when unrestricted
func (p Predicate) SQL() string {
	if len(p.conditions) == 0 {
		return "TRUE"
	}
	return strings.Join(p.conditions, " AND ")
}

// Args returns the positional arguments matching SQL()
func (p Predicate) Args() []any {
	return p.args
}

func (p *Predicate) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i, arg := range args {
		p.args = append(p.args, arg)
		placeholders[i] = fmt.Sprintf("$%d", len(p.args))
	}
	p.conditions = append(p.conditions, fmt.Sprintf(format, placeholders...))
}

// BuildPredicate translates an access scope plus request filters into a
// store predicate. The translation is pure and monotonic: a wider scope
// never yields a narrower predicate. The self-exception is always additive;
// a team restriction ORs with "my own records", never replaces it. An
// explicit team filter outside the scope fails with a ScopeConflictError
// rather than being dropped or narrowed silently.
func BuildPredicate(scope rbac.AccessScope, f Filter) (Predicate, error) {
	var p Predicate

	if f.TeamID != nil && !scope.AllowsTeam(*f.TeamID) {
		return Predicate{}, &rbac.ScopeConflictError{TeamID: *f.TeamID, Scope: scope.Kind}
	}

	switch scope.Kind {
	case rbac.ScopeOrganizationWide:
		// no visibility restriction
	case rbac.ScopeTeamRestricted:
		if len(scope.TeamIDs) > 0 {
			placeholders := make([]string, 0, len(scope.TeamIDs))
			for _, teamID := range scope.TeamIDs {
				p.args = append(p.args, teamID)
				placeholders = append(placeholders, fmt.Sprintf("$%d", len(p.args)))
			}
			teamClause := fmt.Sprintf("team_id IN (%s)", strings.Join(placeholders, ", "))
			p.conditions = append(p.conditions, fmt.Sprintf("(%s OR %s)", teamClause, selfClause(&p, scope.UserID)))
		} else {
			// An empty team set degrades to self visibility, never to all
			p.conditions = append(p.conditions, "("+selfClause(&p, scope.UserID)+")")
		}
	default:
		p.conditions = append(p.conditions, "("+selfClause(&p, scope.UserID)+")")
	}

	if f.TeamID != nil {
		p.add("team_id = %s", *f.TeamID)
	}
	if f.Status != nil {
		p.add("status = %s", string(*f.Status))
	}
	if f.Priority != nil {
		p.add("priority = %s", string(*f.Priority))
	}
	if f.AssigneeID != nil {
		p.add("assignee_id = %s", *f.AssigneeID)
	}
	if f.Search != "" {
		p.add("subject ILIKE %s", "%"+f.Search+"%")
	}

	return p, nil
}

// selfClause appends the self-exception arguments and returns the matching
// clause text: records the user requested, filed, works, or follows.
func selfClause(p *Predicate, userID int64) string {
	parts := make([]string, 0, 4)
	for _, column := range []string{"requester_id = %s", "created_by = %s", "assignee_id = %s", "%s = ANY(follower_ids)"} {
		p.args = append(p.args, userID)
		parts = append(parts, fmt.Sprintf(column, fmt.Sprintf("$%d", len(p.args))))
	}
	return strings.Join(parts, " OR ")
}
