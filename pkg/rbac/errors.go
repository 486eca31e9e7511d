package rbac

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps failures reaching the directory or session
// store. Callers must surface it as a 5xx: "I don't know" is never an allow
// and never a plain 403.
var ErrStoreUnavailable = errors.New("authorization store unavailable")

// ErrUserNotFound is returned by snapshot sources when the user does not
// exist. The engine treats it as a fail-closed denial, not a hard failure.
var ErrUserNotFound = errors.New("user not found")

// StoreError wraps err so that errors.Is(err, ErrStoreUnavailable) holds
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// ScopeConflictError reports an explicit filter parameter requesting data
// outside the computed access scope. Handlers map it to a 403
// TEAM_ACCESS_DENIED response, never to an empty result set.
type ScopeConflictError struct {
	TeamID int64
	Scope  ScopeKind
}

func (e *ScopeConflictError) Error() string {
	return fmt.Sprintf("team %d is outside the %s access scope", e.TeamID, e.Scope)
}

// IsScopeConflict reports whether err is a scope conflict
func IsScopeConflict(err error) bool {
	var sc *ScopeConflictError
	return errors.As(err, &sc)
}
