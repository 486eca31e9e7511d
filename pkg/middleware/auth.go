package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/opendesk-io/opendesk/pkg/auth"
	"github.com/opendesk-io/opendesk/pkg/contextkeys"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// SessionCookieName is the cookie fallback for browser clients
const SessionCookieName = "desk_session"

// Auth authenticates every request through the session manager. The token
// comes from the Authorization header (Bearer scheme) or the session
// cookie. Unauthenticated requests get a 401; a session store outage gets
// a 503, never a 401 that would log users out.
func Auth(manager *auth.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			authCtx, err := manager.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, rbac.ErrStoreUnavailable) {
					httputil.WriteServiceUnavailable(w, "authentication temporarily unavailable")
					return
				}
				httputil.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithAuth(r.Context(), authCtx)))
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		if token != "" {
			return token, true
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// AuthFromRequest returns the authenticated context set by Auth
func AuthFromRequest(r *http.Request) (*auth.AuthContext, bool) {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	return authCtx, ok
}

// Identity adapts the authenticated context to the permission middleware's
// identity function.
func Identity(r *http.Request) (int64, bool) {
	authCtx, ok := AuthFromRequest(r)
	if !ok {
		return 0, false
	}
	return authCtx.UserID, true
}
