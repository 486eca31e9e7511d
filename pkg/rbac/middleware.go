package rbac

import (
	"errors"
	"net/http"

	"github.com/opendesk-io/opendesk/pkg/httputil"
)

// Identity resolves the authenticated user ID from a request. The auth
// middleware provides an implementation; the indirection keeps this package
// free of session concerns.
type Identity func(r *http.Request) (int64, bool)

// PermissionMiddleware gates routes on coarse permission checks
type PermissionMiddleware struct {
	engine   *Engine
	identity Identity
}

// NewPermissionMiddleware creates permission-checking middleware
func NewPermissionMiddleware(engine *Engine, identity Identity) *PermissionMiddleware {
	return &PermissionMiddleware{engine: engine, identity: identity}
}

// Require gates the wrapped handler on CheckPermission(user, action,
// resource). Unauthenticated requests get a 401, denials the structured 403
// body, and store failures a 503, never a silent allow or a plain 403.
func (pm *PermissionMiddleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := pm.identity(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			allowed, err := pm.engine.CheckPermission(r.Context(), userID, action, resource)
			if err != nil {
				if errors.Is(err, ErrStoreUnavailable) {
					httputil.WriteServiceUnavailable(w, "authorization temporarily unavailable")
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			if !allowed {
				httputil.WritePermissionDenied(w, PermissionString(resource, action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
