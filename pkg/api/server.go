package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opendesk-io/opendesk/pkg/auth"
	"github.com/opendesk-io/opendesk/pkg/cache"
	"github.com/opendesk-io/opendesk/pkg/directory"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/middleware"
	"github.com/opendesk-io/opendesk/pkg/observability"
	"github.com/opendesk-io/opendesk/pkg/rbac"
	"github.com/opendesk-io/opendesk/pkg/tickets"
)

// Deps carries everything the API server composes. The composition root
// builds these once and hands them over.
type Deps struct {
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	Cache          *cache.Cache
	Engine         *rbac.Engine
	SessionManager *auth.SessionManager
	Directory      *directory.Store
	DirectoryAdmin *directory.Service
	Tickets        *tickets.Service
}

// Server is the HTTP API: one mux router behind the request-ID, logging,
// metrics, and authentication middleware chain.
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates the API server and mounts all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestID)
	api.Use(middleware.Logging(s.deps.Logger))
	if s.deps.Metrics != nil {
		api.Use(s.deps.Metrics.Middleware)
	}
	api.Use(middleware.Auth(s.deps.SessionManager))

	perm := rbac.NewPermissionMiddleware(s.deps.Engine, middleware.Identity)

	rbac.NewHandlers(s.deps.Engine, middleware.Identity).Register(api)
	tickets.NewHandlers(s.deps.Tickets, s.deps.Engine, middleware.Identity).Register(api, perm)
	directory.NewHandlers(s.deps.Directory, s.deps.DirectoryAdmin, middleware.Identity).Register(api, perm)

	api.Handle("/rbac/cache/stats", perm.Require(rbac.ResourceRoles, rbac.ActionManage)(
		http.HandlerFunc(s.cacheStats))).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// cacheStats serves the permission cache counters for operators
func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.deps.Cache.Stats())
}

// logout revokes the caller's current session
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.AuthFromRequest(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := s.deps.SessionManager.RevokeHash(r.Context(), authCtx.TokenHash); err != nil {
		httputil.WriteServiceUnavailable(w, "logout temporarily unavailable")
		return
	}
	httputil.WriteNoContent(w)
}
