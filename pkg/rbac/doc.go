// Package rbac implements the role-based access control engine for
// OpenDesk: the component that decides, for a given user, action, and
// resource (optionally narrowed to a concrete record), whether an operation
// is allowed, and that computes the data-visibility scope used to filter
// every list and search query in the system.
//
// # Vocabulary
//
// Resources and actions are closed enumerations. A Grant pairs them
// ("tickets:update"); ActionManage on a resource implies every other action
// on it. Roles resolve to a RoleKind (admin, team lead, or agent) once at
// the store boundary; nothing downstream compares role-name strings.
//
// # Decisions
//
// CheckPermission is the coarse, resource-type-level gate (is this feature
// reachable at all). CheckRecordPermission first runs the coarse check and
// then narrows by ownership:
//
//   - admins act on anything
//   - team leads act on records of teams they lead or belong to, plus
//     always their own records
//   - agents act only on records they own or explicitly collaborate on
//
// Every denial carries a structured Reason (NO_ROLE, ROLE_LACKS_GRANT,
// TEAM_MISMATCH, RECORD_NOT_OWNED) and the permission string that was
// required.
//
// # Access scope
//
// GetUserPermissions returns an AccessScope with exactly one of three
// shapes: organization-wide, team-restricted (with the led/primary team
// set), or self-only. List handlers translate the scope into store
// predicates; the translation must be additive for the self-exception and
// must reject, not drop, explicit filters that fall outside the scope
// (ScopeConflictError).
//
// # Failure semantics
//
// Users with no role, inactive users, and unknown users fail closed: every
// check denies and the scope is SelfOnly. Store connectivity failures are a
// different thing entirely: they propagate wrapped in ErrStoreUnavailable
// and callers must map them to a 5xx, never to an allow and never to a
// plain denial.
package rbac
