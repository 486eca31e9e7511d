package directory

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// setupTestDB builds an in-memory schema mirroring the directory tables so
// snapshot loading and the permission engine can run against real SQL.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is its own database; pin the pool to one
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			role_id INTEGER,
			team_id INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at TIMESTAMP
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			grants TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE team_leaderships (
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (team_id, user_id)
		);
	`)
	require.NoError(t, err)
	return db
}

func seedRole(t *testing.T, db *sql.DB, name, grants string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO roles (name, grants) VALUES (?, ?)`, name, grants)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, db *sql.DB, email string, roleID, teamID *int64, active bool) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (email, name, role_id, team_id, is_active) VALUES (?, ?, ?, ?, ?)`,
		email, email, roleID, teamID, active)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedTeam(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO teams (name) VALUES (?)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestLoadSnapshotAgainstSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	teamA := seedTeam(t, db, "Support")
	teamB := seedTeam(t, db, "Billing")
	leadRole := seedRole(t, db, rbac.RoleNameTeamLead,
		`[{"resource":"tickets","action":"read"},{"resource":"tickets","action":"update"}]`)
	leadID := seedUser(t, db, "lead@example.com", &leadRole, &teamA, true)

	for _, teamID := range []int64{teamA, teamB} {
		_, err := db.Exec(`INSERT INTO team_leaderships (team_id, user_id) VALUES (?, ?)`, teamID, leadID)
		require.NoError(t, err)
	}

	snap, err := store.LoadSnapshot(ctx, leadID)
	require.NoError(t, err)
	assert.Equal(t, leadID, snap.UserID)
	assert.Equal(t, rbac.RoleKindTeamLead, snap.Kind)
	assert.True(t, snap.IsActive)
	require.NotNil(t, snap.TeamID)
	assert.Equal(t, teamA, *snap.TeamID)
	assert.Equal(t, []int64{teamA, teamB}, snap.LedTeamIDs)
	assert.True(t, snap.Grants.Allows(rbac.ActionRead, rbac.ResourceTickets))
	assert.False(t, snap.Grants.Allows(rbac.ActionDelete, rbac.ResourceTickets))
}

func TestLoadSnapshotRolelessAndMissingUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	userID := seedUser(t, db, "norole@example.com", nil, nil, true)

	snap, err := store.LoadSnapshot(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, snap.RoleID)
	assert.False(t, snap.Eligible())

	_, err = store.LoadSnapshot(ctx, 9999)
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
	assert.NotErrorIs(t, err, rbac.ErrStoreUnavailable)
}

func TestLoadSnapshotSoftDeletedUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)

	role := seedRole(t, db, rbac.RoleNameAdmin, `[{"resource":"tickets","action":"manage"}]`)
	userID := seedUser(t, db, "gone@example.com", &role, nil, true)
	_, err := db.Exec(`UPDATE users SET is_deleted = TRUE, deleted_at = CURRENT_TIMESTAMP WHERE id = ?`, userID)
	require.NoError(t, err)

	_, err = store.LoadSnapshot(ctx, userID)
	assert.ErrorIs(t, err, rbac.ErrUserNotFound,
		"a soft-deleted user must look exactly like a missing one")
}

// The engine resolves scope and record decisions over the same schema the
// store serves in production.
func TestEngineOverSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewStore(db)
	engine := rbac.NewEngine(store)

	teamA := seedTeam(t, db, "Support")
	teamB := seedTeam(t, db, "Billing")

	adminRole := seedRole(t, db, rbac.RoleNameAdmin, `[{"resource":"tickets","action":"manage"}]`)
	employeeRole := seedRole(t, db, rbac.RoleNameEmployee,
		`[{"resource":"tickets","action":"read"},{"resource":"tickets","action":"create"}]`)

	adminID := seedUser(t, db, "admin@example.com", &adminRole, nil, true)
	employeeID := seedUser(t, db, "employee@example.com", &employeeRole, &teamA, true)

	allowed, err := engine.CheckPermission(ctx, adminID, rbac.ActionDelete, rbac.ResourceTickets)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = engine.CheckPermission(ctx, employeeID, rbac.ActionDelete, rbac.ResourceTickets)
	require.NoError(t, err)
	assert.False(t, allowed)

	scope, err := engine.GetUserPermissions(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ScopeOrganizationWide, scope.Kind)

	scope, err = engine.GetUserPermissions(ctx, employeeID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ScopeSelfOnly, scope.Kind)

	decision, err := engine.CheckRecordPermission(ctx, employeeID, rbac.ActionRead, rbac.ResourceTickets,
		&rbac.RecordRef{TeamID: &teamB, CreatedBy: &adminID})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, rbac.ReasonRecordNotOwned, decision.Reason)

	decision, err = engine.CheckRecordPermission(ctx, employeeID, rbac.ActionRead, rbac.ResourceTickets,
		&rbac.RecordRef{TeamID: &teamB, CreatedBy: &employeeID})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
