// Package cache provides the process-local permission cache: user
// permission snapshots and session validations, each with its own TTL and
// capacity bound. Capacity pressure evicts the oldest-by-insertion tenth
// of entries in one batch; a periodic sweep drops expired entries.
//
// The cache is constructed by the composition root and injected into the
// permission engine and session manager. Role and team mutations call
// InvalidateUser synchronously so stale elevated permissions never outlive
// the mutation response.
package cache
