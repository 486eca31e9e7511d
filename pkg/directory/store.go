package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

var (
	// ErrRoleNotFound is returned for missing role IDs
	ErrRoleNotFound = errors.New("role not found")
	// ErrTeamNotFound is returned for missing team IDs
	ErrTeamNotFound = errors.New("team not found")
	// ErrRoleInUse is returned when deleting a role that users still hold
	ErrRoleInUse = errors.New("role still assigned to users")
)

// roleCacheTTL bounds staleness of cached role definitions. Role grant
// edits are rare and tolerate this lag; user-to-role assignments do not and
// are invalidated synchronously through the permission cache instead.
const (
	roleCacheTTL  = time.Minute
	roleCacheSize = 64
)

// Store persists users, teams, roles, and team leaderships. It implements
// the permission engine's snapshot source.
type Store struct {
	db        *sql.DB
	roleCache *expirable.LRU[int64, *Role]
	metrics   *observability.Metrics
}

// NewStore creates a directory store over an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:        db,
		roleCache: expirable.NewLRU[int64, *Role](roleCacheSize, nil, roleCacheTTL),
	}
}

// WithMetrics attaches store operation counters
func (s *Store) WithMetrics(m *observability.Metrics) *Store {
	s.metrics = m
	return s
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.StoreOperationsTotal.WithLabelValues(op, outcome).Inc()
	s.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

const userColumns = `id, email, name, role_id, team_id, is_active, is_deleted, created_at, updated_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.TeamID,
		&u.IsActive, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by ID. Soft-deleted users are not found.
func (s *Store) GetUser(ctx context.Context, id int64) (user *User, err error) {
	defer func(start time.Time) { s.observe("get_user", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_deleted = FALSE`, id)
	user, err = scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrUserNotFound
	}
	if err != nil {
		return nil, rbac.StoreError("get user", err)
	}
	return user, nil
}

// GetUserByEmail fetches an active user by email, used at login
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user *User, err error) {
	defer func(start time.Time) { s.observe("get_user_by_email", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_deleted = FALSE`, email)
	user, err = scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrUserNotFound
	}
	if err != nil {
		return nil, rbac.StoreError("get user by email", err)
	}
	return user, nil
}

// ListUsers returns all non-deleted users
func (s *Store) ListUsers(ctx context.Context) (users []*User, err error) {
	defer func(start time.Time) { s.observe("list_users", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_deleted = FALSE ORDER BY id`)
	if err != nil {
		return nil, rbac.StoreError("list users", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, rbac.StoreError("scan user", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("list users", err)
	}
	return users, nil
}

// CreateUser inserts a user and returns it with its assigned ID
func (s *Store) CreateUser(ctx context.Context, u *User) (err error) {
	defer func(start time.Time) { s.observe("create_user", start, err) }(time.Now())

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, role_id, team_id, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.RoleID, u.TeamID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return rbac.StoreError("create user", err)
	}
	return nil
}

// setUserRole updates the role assignment. Returns ErrUserNotFound when no
// row matches.
func (s *Store) setUserRole(ctx context.Context, userID int64, roleID *int64) (err error) {
	defer func(start time.Time) { s.observe("set_user_role", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET role_id = $1, updated_at = NOW() WHERE id = $2 AND is_deleted = FALSE`,
		roleID, userID)
	if err != nil {
		return rbac.StoreError("set user role", err)
	}
	return rowsAffected(res)
}

func (s *Store) setUserTeam(ctx context.Context, userID int64, teamID *int64) (err error) {
	defer func(start time.Time) { s.observe("set_user_team", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET team_id = $1, updated_at = NOW() WHERE id = $2 AND is_deleted = FALSE`,
		teamID, userID)
	if err != nil {
		return rbac.StoreError("set user team", err)
	}
	return rowsAffected(res)
}

func (s *Store) setUserActive(ctx context.Context, userID int64, active bool) (err error) {
	defer func(start time.Time) { s.observe("set_user_active", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2 AND is_deleted = FALSE`,
		active, userID)
	if err != nil {
		return rbac.StoreError("set user active", err)
	}
	return rowsAffected(res)
}

// updateUserProfile changes the self-editable fields only. Role, team, and
// activation stay admin-only mutations.
func (s *Store) updateUserProfile(ctx context.Context, userID int64, name, email string) (err error) {
	defer func(start time.Time) { s.observe("update_user_profile", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = $1, email = $2, updated_at = NOW() WHERE id = $3 AND is_deleted = FALSE`,
		name, email, userID)
	if err != nil {
		return rbac.StoreError("update user profile", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return rbac.StoreError("rows affected", err)
	}
	if n == 0 {
		return rbac.ErrUserNotFound
	}
	return nil
}

// GetRole fetches a role by ID, served from a short-TTL cache
func (s *Store) GetRole(ctx context.Context, id int64) (role *Role, err error) {
	if cached, ok := s.roleCache.Get(id); ok {
		return cached, nil
	}
	defer func(start time.Time) { s.observe("get_role", start, err) }(time.Now())

	var grantsJSON []byte
	role = &Role{}
	var name string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, grants, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &name, &grantsJSON, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}
	if err != nil {
		return nil, rbac.StoreError("get role", err)
	}
	role.Name = name
	role.Kind = rbac.KindOfRole(name)
	if err = json.Unmarshal(grantsJSON, &role.Grants); err != nil {
		return nil, fmt.Errorf("role %d has malformed grants: %w", id, err)
	}
	s.roleCache.Add(id, role)
	return role, nil
}

// ListRoles returns all roles
func (s *Store) ListRoles(ctx context.Context) (roles []*Role, err error) {
	defer func(start time.Time) { s.observe("list_roles", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, grants, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, rbac.StoreError("list roles", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Role
		var grantsJSON []byte
		if err = rows.Scan(&r.ID, &r.Name, &grantsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, rbac.StoreError("scan role", err)
		}
		r.Kind = rbac.KindOfRole(r.Name)
		if err = json.Unmarshal(grantsJSON, &r.Grants); err != nil {
			return nil, fmt.Errorf("role %d has malformed grants: %w", r.ID, err)
		}
		roles = append(roles, &r)
	}
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("list roles", err)
	}
	return roles, nil
}

// CreateRole inserts a role and returns it with its assigned ID. Duplicate
// grant tuples collapse before storage, so re-adding an existing grant is a
// no-op.
func (s *Store) CreateRole(ctx context.Context, r *Role) (err error) {
	defer func(start time.Time) { s.observe("create_role", start, err) }(time.Now())

	r.Grants = rbac.NewGrantSet(r.Grants).List()
	grantsJSON, err := json.Marshal(r.Grants)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, grants) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		r.Name, grantsJSON).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return rbac.StoreError("create role", err)
	}
	r.Kind = rbac.KindOfRole(r.Name)
	return nil
}

// UpdateRoleGrants replaces a role's grant list
func (s *Store) UpdateRoleGrants(ctx context.Context, id int64, grants []rbac.Grant) (err error) {
	defer func(start time.Time) { s.observe("update_role_grants", start, err) }(time.Now())

	grantsJSON, err := json.Marshal(rbac.NewGrantSet(grants).List())
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE roles SET grants = $1, updated_at = NOW() WHERE id = $2`, grantsJSON, id)
	if err != nil {
		return rbac.StoreError("update role grants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rbac.StoreError("update role grants", err)
	}
	if n == 0 {
		return fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}
	return nil
}

// DeleteRole removes a role. Refused while any non-deleted user still holds
// it, so a delete can never silently strip live assignments.
func (s *Store) DeleteRole(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.observe("delete_role", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.StoreError("delete role", err)
	}
	defer tx.Rollback()

	var holders int64
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role_id = $1 AND is_deleted = FALSE`, id).Scan(&holders)
	if err != nil {
		return rbac.StoreError("delete role", err)
	}
	if holders > 0 {
		return fmt.Errorf("role %d held by %d users: %w", id, holders, ErrRoleInUse)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return rbac.StoreError("delete role", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rbac.StoreError("delete role", err)
	}
	if n == 0 {
		return fmt.Errorf("role %d: %w", id, ErrRoleNotFound)
	}
	if err = tx.Commit(); err != nil {
		return rbac.StoreError("delete role", err)
	}
	return nil
}

// InvalidateRole drops a role from the definition cache after a grant edit
func (s *Store) InvalidateRole(id int64) {
	s.roleCache.Remove(id)
}

// GetTeam fetches a team by ID
func (s *Store) GetTeam(ctx context.Context, id int64) (team *Team, err error) {
	defer func(start time.Time) { s.observe("get_team", start, err) }(time.Now())

	team = &Team{}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM teams WHERE id = $1`, id).
		Scan(&team.ID, &team.Name, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %d: %w", id, ErrTeamNotFound)
	}
	if err != nil {
		return nil, rbac.StoreError("get team", err)
	}
	return team, nil
}

// ListTeams returns all teams
func (s *Store) ListTeams(ctx context.Context) (teams []*Team, err error) {
	defer func(start time.Time) { s.observe("list_teams", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM teams ORDER BY id`)
	if err != nil {
		return nil, rbac.StoreError("list teams", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Team
		if err = rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, rbac.StoreError("scan team", err)
		}
		teams = append(teams, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("list teams", err)
	}
	return teams, nil
}

// CreateTeam inserts a team and returns it with its assigned ID
func (s *Store) CreateTeam(ctx context.Context, t *Team) (err error) {
	defer func(start time.Time) { s.observe("create_team", start, err) }(time.Now())

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO teams (name) VALUES ($1) RETURNING id, created_at, updated_at`,
		t.Name).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return rbac.StoreError("create team", err)
	}
	return nil
}

// DeleteTeam removes a team, detaching its members and leaders. Returns the
// affected member IDs so callers can invalidate their cached permissions.
func (s *Store) DeleteTeam(ctx context.Context, id int64) (memberIDs []int64, err error) {
	defer func(start time.Time) { s.observe("delete_team", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT user_id FROM team_leaderships WHERE team_id = $1
		 UNION SELECT id FROM users WHERE team_id = $1`, id)
	if err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	for rows.Next() {
		var uid int64
		if err = rows.Scan(&uid); err != nil {
			rows.Close()
			return nil, rbac.StoreError("delete team", err)
		}
		memberIDs = append(memberIDs, uid)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("delete team", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET team_id = NULL, updated_at = NOW() WHERE team_id = $1`, id); err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM team_leaderships WHERE team_id = $1`, id); err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM teams WHERE id = $1`, id); err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, rbac.StoreError("delete team", err)
	}
	return memberIDs, nil
}

// GetLedTeamIDs returns the IDs of every team the user leads
func (s *Store) GetLedTeamIDs(ctx context.Context, userID int64) (teamIDs []int64, err error) {
	defer func(start time.Time) { s.observe("get_led_teams", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT team_id FROM team_leaderships WHERE user_id = $1 ORDER BY team_id`, userID)
	if err != nil {
		return nil, rbac.StoreError("get led teams", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, rbac.StoreError("scan led team", err)
		}
		teamIDs = append(teamIDs, id)
	}
	if err = rows.Err(); err != nil {
		return nil, rbac.StoreError("get led teams", err)
	}
	return teamIDs, nil
}

func (s *Store) addTeamLeader(ctx context.Context, teamID, userID int64) (err error) {
	defer func(start time.Time) { s.observe("add_team_leader", start, err) }(time.Now())

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO team_leaderships (team_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (team_id, user_id) DO NOTHING`, teamID, userID)
	if err != nil {
		return rbac.StoreError("add team leader", err)
	}
	return nil
}

func (s *Store) removeTeamLeader(ctx context.Context, teamID, userID int64) (err error) {
	defer func(start time.Time) { s.observe("remove_team_leader", start, err) }(time.Now())

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM team_leaderships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return rbac.StoreError("remove team leader", err)
	}
	return nil
}

// LoadSnapshot resolves a user's complete permission state in one pass. It
// implements the permission engine's snapshot source.
func (s *Store) LoadSnapshot(ctx context.Context, userID int64) (*rbac.Snapshot, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &rbac.Snapshot{
		UserID:   user.ID,
		RoleID:   user.RoleID,
		TeamID:   user.TeamID,
		IsActive: user.IsActive && !user.IsDeleted,
	}
	if user.RoleID == nil {
		return snap, nil
	}

	role, err := s.GetRole(ctx, *user.RoleID)
	if err != nil {
		return nil, err
	}
	snap.RoleName = role.Name
	snap.Kind = role.Kind
	snap.Grants = rbac.NewGrantSet(role.Grants)

	if role.Kind == rbac.RoleKindTeamLead {
		led, err := s.GetLedTeamIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		snap.LedTeamIDs = led
	}
	return snap, nil
}
