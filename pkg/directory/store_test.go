package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func userRows(id int64, roleID, teamID *int64, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "name", "role_id", "team_id",
		"is_active", "is_deleted", "created_at", "updated_at", "deleted_at",
	}).AddRow(id, "user@example.com", "Test User", roleID, teamID, active, false, testTime, testTime, nil)
}

func roleRows(id int64, name, grants string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "grants", "created_at", "updated_at"}).
		AddRow(id, name, []byte(grants), testTime, testTime)
}

func TestStoreGetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	roleID := int64(2)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1 AND is_deleted = FALSE`).
		WithArgs(int64(7)).
		WillReturnRows(userRows(7, &roleID, nil, true))

	user, err := store.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	require.NotNil(t, user.RoleID)
	assert.Equal(t, int64(2), *user.RoleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	// An empty result set maps to the sentinel, not a store failure
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "name", "role_id", "team_id",
			"is_active", "is_deleted", "created_at", "updated_at", "deleted_at",
		}))

	_, err = store.GetUser(context.Background(), 99)
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
	assert.NotErrorIs(t, err, rbac.ErrStoreUnavailable)
}

func TestStoreGetUserConnectionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM users`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("connection refused"))

	_, err = store.GetUser(context.Background(), 7)
	assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
}

func TestStoreLoadSnapshotAgent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	roleID, teamID := int64(3), int64(5)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(userRows(7, &roleID, &teamID, true))
	mock.ExpectQuery(`SELECT id, name, grants, created_at, updated_at FROM roles`).
		WithArgs(roleID).
		WillReturnRows(roleRows(roleID, rbac.RoleNameEmployee,
			`[{"resource":"tickets","action":"read"},{"resource":"tickets","action":"create"}]`))

	snap, err := store.LoadSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, snap.Eligible())
	assert.Equal(t, rbac.RoleKindAgent, snap.Kind)
	assert.True(t, snap.Grants.Allows(rbac.ActionRead, rbac.ResourceTickets))
	assert.False(t, snap.Grants.Allows(rbac.ActionDelete, rbac.ResourceTickets))
	assert.Empty(t, snap.LedTeamIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadSnapshotTeamLead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	roleID, teamID := int64(2), int64(5)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(userRows(7, &roleID, &teamID, true))
	mock.ExpectQuery(`SELECT id, name, grants, created_at, updated_at FROM roles`).
		WithArgs(roleID).
		WillReturnRows(roleRows(roleID, rbac.RoleNameTeamLead,
			`[{"resource":"tickets","action":"manage"}]`))
	mock.ExpectQuery(`SELECT team_id FROM team_leaderships WHERE user_id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"team_id"}).AddRow(int64(8)).AddRow(int64(9)))

	snap, err := store.LoadSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleKindTeamLead, snap.Kind)
	assert.Equal(t, []int64{8, 9}, snap.LedTeamIDs)
	// Manage wildcard covers every ticket action
	assert.True(t, snap.Grants.Allows(rbac.ActionDelete, rbac.ResourceTickets))
	assert.Equal(t, []int64{5, 8, 9}, snap.VisibleTeamIDs())
}

func TestStoreLoadSnapshotNoRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(userRows(7, nil, nil, true))

	snap, err := store.LoadSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, snap.Eligible())
	assert.Equal(t, rbac.RoleKindNone, snap.Kind)
}

func TestStoreGetRoleCached(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery(`SELECT id, name, grants, created_at, updated_at FROM roles`).
		WithArgs(int64(2)).
		WillReturnRows(roleRows(2, rbac.RoleNameAdmin, `[]`))

	// Second call is served from the role cache; only one query expected
	for i := 0; i < 2; i++ {
		role, err := store.GetRole(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, rbac.RoleKindAdmin, role.Kind)
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	store.InvalidateRole(2)
	mock.ExpectQuery(`SELECT id, name, grants, created_at, updated_at FROM roles`).
		WithArgs(int64(2)).
		WillReturnRows(roleRows(2, rbac.RoleNameAdmin, `[]`))
	_, err = store.GetRole(context.Background(), 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteTeamDetachesMembers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id FROM team_leaderships WHERE team_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(`UPDATE users SET team_id = NULL`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM team_leaderships WHERE team_id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM teams WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	memberIDs, err := store.DeleteTeam(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, memberIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
