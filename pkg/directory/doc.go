// Package directory persists users, teams, roles, and team leaderships,
// and resolves the per-user permission snapshots the permission engine
// consumes. The mutation service is the only write path for role and team
// assignments; it invalidates the affected user's cached permission state
// synchronously, before the mutation response is sent.
package directory
