// Package auth implements opaque-token sessions. Clients hold a desk_
// prefixed random token; the server stores only its SHA256 hash, in Redis,
// with a per-user index for logout-everywhere. The session manager caches
// validation results through the shared permission cache and rejects
// sessions of deactivated users on every validation.
package auth
