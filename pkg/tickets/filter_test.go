package tickets

import (
	"strings"
	"testing"

	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestBuildPredicateOrganizationWide(t *testing.T) {
	scope := rbac.OrganizationWide(1, int64p(5))

	p, err := BuildPredicate(scope, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "TRUE", p.SQL())
	assert.Empty(t, p.Args())
}

func TestBuildPredicateTeamRestricted(t *testing.T) {
	scope := rbac.TeamRestricted(1, []int64{5, 8}, int64p(5))

	p, err := BuildPredicate(scope, Filter{})
	require.NoError(t, err)

	sql := p.SQL()
	assert.Contains(t, sql, "team_id IN ($1, $2)")
	// Self-exception is additive: OR, inside the same clause
	assert.Contains(t, sql, " OR requester_id = $3")
	assert.Contains(t, sql, "created_by = $4")
	assert.Contains(t, sql, "assignee_id = $5")
	assert.Contains(t, sql, "$6 = ANY(follower_ids)")
	assert.Equal(t, []any{int64(5), int64(8), int64(1), int64(1), int64(1), int64(1)}, p.Args())
}

func TestBuildPredicateSelfOnly(t *testing.T) {
	scope := rbac.SelfOnly(1, nil)

	p, err := BuildPredicate(scope, Filter{})
	require.NoError(t, err)

	sql := p.SQL()
	assert.NotContains(t, sql, "team_id IN")
	assert.Contains(t, sql, "requester_id = $1")
	assert.Contains(t, sql, "$4 = ANY(follower_ids)")
}

func TestBuildPredicateEmptyTeamSetDegradesToSelf(t *testing.T) {
	// A team-restricted scope with no teams must read as "own records
	// only", never as unrestricted
	scope := rbac.TeamRestricted(1, nil, nil)

	p, err := BuildPredicate(scope, Filter{})
	require.NoError(t, err)
	assert.NotEqual(t, "TRUE", p.SQL())
	assert.NotContains(t, p.SQL(), "team_id IN")
	assert.Contains(t, p.SQL(), "requester_id = $1")
}

func TestBuildPredicateScopeConflict(t *testing.T) {
	tests := []struct {
		name  string
		scope rbac.AccessScope
	}{
		{"team restricted, team outside set", rbac.TeamRestricted(1, []int64{5, 8}, int64p(5))},
		{"self only, foreign team", rbac.SelfOnly(1, int64p(5))},
		{"self only, no team at all", rbac.SelfOnly(1, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPredicate(tt.scope, Filter{TeamID: int64p(99)})
			require.Error(t, err)
			assert.True(t, rbac.IsScopeConflict(err), "expected a scope conflict, got %v", err)
		})
	}
}

func TestBuildPredicateExplicitTeamInsideScope(t *testing.T) {
	scope := rbac.TeamRestricted(1, []int64{5, 8}, int64p(5))

	p, err := BuildPredicate(scope, Filter{TeamID: int64p(8)})
	require.NoError(t, err)
	assert.Contains(t, p.SQL(), "team_id = $7")
}

func TestBuildPredicateOwnTeamUnderSelfOnly(t *testing.T) {
	// Membership alone authorizes filtering on the home team, even when the
	// scope is self-only
	scope := rbac.SelfOnly(1, int64p(5))

	p, err := BuildPredicate(scope, Filter{TeamID: int64p(5)})
	require.NoError(t, err)
	assert.Contains(t, p.SQL(), "team_id = $5")
	// The self restriction is still present: membership widens the filter
	// authorization, not the visibility
	assert.Contains(t, p.SQL(), "requester_id = $1")
}

func TestBuildPredicateRequestFilters(t *testing.T) {
	scope := rbac.OrganizationWide(1, nil)
	status := StatusOpen
	priority := PriorityHigh

	p, err := BuildPredicate(scope, Filter{
		Status:     &status,
		Priority:   &priority,
		AssigneeID: int64p(7),
		Search:     "printer",
	})
	require.NoError(t, err)

	sql := p.SQL()
	assert.Contains(t, sql, "status = $1")
	assert.Contains(t, sql, "priority = $2")
	assert.Contains(t, sql, "assignee_id = $3")
	assert.Contains(t, sql, "subject ILIKE $4")
	assert.Equal(t, []any{"open", "high", int64(7), "%printer%"}, p.Args())
}

// Monotonicity: widening the scope never adds restrictions. Checked
// structurally: the org-wide predicate has no conditions, the
// team-restricted predicate restricts strictly less than self-only
// (its clause is the self clause OR more).
func TestBuildPredicateMonotonic(t *testing.T) {
	filter := Filter{}

	wide, err := BuildPredicate(rbac.OrganizationWide(1, int64p(5)), filter)
	require.NoError(t, err)
	team, err := BuildPredicate(rbac.TeamRestricted(1, []int64{5, 8}, int64p(5)), filter)
	require.NoError(t, err)
	self, err := BuildPredicate(rbac.SelfOnly(1, int64p(5)), filter)
	require.NoError(t, err)

	assert.Equal(t, "TRUE", wide.SQL())

	// The team predicate contains the entire self clause as a disjunct,
	// so every row visible under self-only stays visible
	selfClause := strings.TrimSuffix(strings.TrimPrefix(self.SQL(), "("), ")")
	normalized := renumberPlaceholders(t, team.SQL())
	assert.Contains(t, normalized, renumberPlaceholders(t, selfClause))
}

// renumberPlaceholders collapses $n markers so structural containment can
// be compared across predicates with different argument counts.
func renumberPlaceholders(t *testing.T, sql string) string {
	t.Helper()
	out := sql
	for n := 9; n >= 1; n-- {
		out = strings.ReplaceAll(out, "$"+string(rune('0'+n)), "$")
	}
	return out
}

// Argument positions always line up with placeholder numbers, whatever the
// combination of scope and filters.
func TestBuildPredicatePlaceholderAlignment(t *testing.T) {
	status := StatusOpen
	scopes := []rbac.AccessScope{
		rbac.OrganizationWide(1, nil),
		rbac.TeamRestricted(1, []int64{5, 8}, int64p(5)),
		rbac.SelfOnly(1, int64p(5)),
	}

	for _, scope := range scopes {
		p, err := BuildPredicate(scope, Filter{Status: &status, Search: "x", TeamID: scope.HomeTeamID})
		require.NoError(t, err)

		max := 0
		for n := 1; n <= len(p.Args()); n++ {
			marker := "$" + string(rune('0'+n))
			if strings.Contains(p.SQL(), marker) {
				max = n
			}
		}
		assert.Equal(t, len(p.Args()), max, "scope %s: highest placeholder must match arg count", scope.Kind)
	}
}
