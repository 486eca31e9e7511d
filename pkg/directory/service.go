package directory

import (
	"context"
	"fmt"

	"github.com/opendesk-io/opendesk/pkg/audit"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Invalidator drops a user's cached permission state. Implemented by the
// permission cache.
type Invalidator interface {
	InvalidateUser(userID int64)
}

// Service applies directory mutations. Every mutation that can change a
// user's effective permissions invalidates that user's cached permission
// state before returning, so the next request re-resolves from the store.
type Service struct {
	store *Store
	cache Invalidator
	audit audit.Logger
	log   *observability.Logger
}

// NewService creates a directory mutation service
func NewService(store *Store, cache Invalidator, auditor audit.Logger, log *observability.Logger) *Service {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Service{store: store, cache: cache, audit: auditor, log: log}
}

// AssignRole sets a user's role. Passing a nil role ID removes the role,
// leaving the user with no permissions at all.
func (s *Service) AssignRole(ctx context.Context, actorID, userID int64, roleID *int64) error {
	if roleID != nil {
		if _, err := s.store.GetRole(ctx, *roleID); err != nil {
			return err
		}
	}
	if err := s.store.setUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)

	detail := "role removed"
	if roleID != nil {
		detail = fmt.Sprintf("role set to %d", *roleID)
	}
	s.audit.LogAdminAction(ctx, audit.EventTypeRoleChange, actorID, fmt.Sprintf("user:%d", userID), detail)
	s.log.WithFields(map[string]any{"user_id": userID, "actor_id": actorID}).Info("role assignment updated")
	return nil
}

// AssignTeam sets a user's primary team. Passing a nil team ID detaches the
// user from every team.
func (s *Service) AssignTeam(ctx context.Context, actorID, userID int64, teamID *int64) error {
	if teamID != nil {
		if _, err := s.store.GetTeam(ctx, *teamID); err != nil {
			return err
		}
	}
	if err := s.store.setUserTeam(ctx, userID, teamID); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)

	detail := "team removed"
	if teamID != nil {
		detail = fmt.Sprintf("team set to %d", *teamID)
	}
	s.audit.LogAdminAction(ctx, audit.EventTypeTeamChange, actorID, fmt.Sprintf("user:%d", userID), detail)
	return nil
}

// AddTeamLeader grants a user leadership of a team, widening a team
// leader's visible team set.
func (s *Service) AddTeamLeader(ctx context.Context, actorID, teamID, userID int64) error {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.addTeamLeader(ctx, teamID, userID); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.audit.LogAdminAction(ctx, audit.EventTypeLeaderChange, actorID,
		fmt.Sprintf("user:%d", userID), fmt.Sprintf("added as leader of team %d", teamID))
	return nil
}

// RemoveTeamLeader revokes a user's leadership of a team
func (s *Service) RemoveTeamLeader(ctx context.Context, actorID, teamID, userID int64) error {
	if err := s.store.removeTeamLeader(ctx, teamID, userID); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.audit.LogAdminAction(ctx, audit.EventTypeLeaderChange, actorID,
		fmt.Sprintf("user:%d", userID), fmt.Sprintf("removed as leader of team %d", teamID))
	return nil
}

// DeactivateUser suspends an account. The invalidation drops both the
// cached snapshot and every cached session validation, so in-flight
// sessions stop working immediately.
func (s *Service) DeactivateUser(ctx context.Context, actorID, userID int64) error {
	if err := s.store.setUserActive(ctx, userID, false); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.audit.LogAdminAction(ctx, audit.EventTypeUserDeactivate, actorID,
		fmt.Sprintf("user:%d", userID), "account deactivated")
	return nil
}

// ReactivateUser restores a suspended account
func (s *Service) ReactivateUser(ctx context.Context, actorID, userID int64) error {
	if err := s.store.setUserActive(ctx, userID, true); err != nil {
		return err
	}
	s.cache.InvalidateUser(userID)
	s.audit.LogAdminAction(ctx, audit.EventTypeUserReactivate, actorID,
		fmt.Sprintf("user:%d", userID), "account reactivated")
	return nil
}

// UpdateProfile applies a self-service edit of name and email. Nothing here
// touches permission state, so no invalidation is needed.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, email string) error {
	return s.store.updateUserProfile(ctx, userID, name, email)
}

// CreateRole adds a named grant bundle
func (s *Service) CreateRole(ctx context.Context, actorID int64, role *Role) error {
	if err := s.store.CreateRole(ctx, role); err != nil {
		return err
	}
	s.audit.LogAdminAction(ctx, audit.EventTypeRoleChange, actorID,
		fmt.Sprintf("role:%d", role.ID), fmt.Sprintf("role %q created with %d grants", role.Name, len(role.Grants)))
	return nil
}

// UpdateRoleGrants replaces a role's grants. Holders' cached snapshots age
// out within the permission cache TTL; the role definition cache is dropped
// immediately.
func (s *Service) UpdateRoleGrants(ctx context.Context, actorID, roleID int64, grants []rbac.Grant) error {
	if err := s.store.UpdateRoleGrants(ctx, roleID, grants); err != nil {
		return err
	}
	s.store.InvalidateRole(roleID)
	s.audit.LogAdminAction(ctx, audit.EventTypeRoleChange, actorID,
		fmt.Sprintf("role:%d", roleID), fmt.Sprintf("grants replaced, %d entries", len(grants)))
	return nil
}

// DeleteRole removes an unreferenced role
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.store.InvalidateRole(roleID)
	s.audit.LogAdminAction(ctx, audit.EventTypeRoleChange, actorID,
		fmt.Sprintf("role:%d", roleID), "role deleted")
	return nil
}

// DeleteTeam removes a team and detaches its members, invalidating each
// affected member's cached permission state.
func (s *Service) DeleteTeam(ctx context.Context, actorID, teamID int64) error {
	memberIDs, err := s.store.DeleteTeam(ctx, teamID)
	if err != nil {
		return err
	}
	for _, uid := range memberIDs {
		s.cache.InvalidateUser(uid)
	}
	s.audit.LogAdminAction(ctx, audit.EventTypeTeamChange, actorID,
		fmt.Sprintf("team:%d", teamID), fmt.Sprintf("team deleted, %d members detached", len(memberIDs)))
	return nil
}
