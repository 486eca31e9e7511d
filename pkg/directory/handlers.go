package directory

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Handlers exposes the directory admin API
type Handlers struct {
	store    *Store
	service  *Service
	identity rbac.Identity
}

// NewHandlers creates the directory handlers
func NewHandlers(store *Store, service *Service, identity rbac.Identity) *Handlers {
	return &Handlers{store: store, service: service, identity: identity}
}

// Register mounts the directory routes. Reads require the read grant on
// the resource; mutations require manage.
func (h *Handlers) Register(r *mux.Router, perm *rbac.PermissionMiddleware) {
	r.Handle("/users", perm.Require(rbac.ResourceUsers, rbac.ActionRead)(
		http.HandlerFunc(h.ListUsers))).Methods(http.MethodGet)
	r.Handle("/teams", perm.Require(rbac.ResourceTeams, rbac.ActionRead)(
		http.HandlerFunc(h.ListTeams))).Methods(http.MethodGet)
	r.Handle("/roles", perm.Require(rbac.ResourceRoles, rbac.ActionRead)(
		http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)

	r.Handle("/teams", perm.Require(rbac.ResourceTeams, rbac.ActionManage)(
		http.HandlerFunc(h.CreateTeam))).Methods(http.MethodPost)
	r.Handle("/teams/{id:[0-9]+}", perm.Require(rbac.ResourceTeams, rbac.ActionManage)(
		http.HandlerFunc(h.DeleteTeam))).Methods(http.MethodDelete)
	r.Handle("/teams/{id:[0-9]+}/leaders", perm.Require(rbac.ResourceTeams, rbac.ActionManage)(
		http.HandlerFunc(h.AddLeader))).Methods(http.MethodPost)
	r.Handle("/teams/{id:[0-9]+}/leaders/{userId:[0-9]+}", perm.Require(rbac.ResourceTeams, rbac.ActionManage)(
		http.HandlerFunc(h.RemoveLeader))).Methods(http.MethodDelete)

	r.Handle("/roles", perm.Require(rbac.ResourceRoles, rbac.ActionManage)(
		http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	r.Handle("/roles/{id:[0-9]+}/grants", perm.Require(rbac.ResourceRoles, rbac.ActionManage)(
		http.HandlerFunc(h.SetRoleGrants))).Methods(http.MethodPut)
	r.Handle("/roles/{id:[0-9]+}", perm.Require(rbac.ResourceRoles, rbac.ActionManage)(
		http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)

	// Self-service; gated by authentication alone so roleless users can
	// still fix their own name or email
	r.HandleFunc("/users/me/profile", h.UpdateProfile).Methods(http.MethodPut)

	r.Handle("/users/{id:[0-9]+}/role", perm.Require(rbac.ResourceUsers, rbac.ActionManage)(
		http.HandlerFunc(h.SetRole))).Methods(http.MethodPut)
	r.Handle("/users/{id:[0-9]+}/team", perm.Require(rbac.ResourceUsers, rbac.ActionManage)(
		http.HandlerFunc(h.SetTeam))).Methods(http.MethodPut)
	r.Handle("/users/{id:[0-9]+}/deactivate", perm.Require(rbac.ResourceUsers, rbac.ActionManage)(
		http.HandlerFunc(h.Deactivate))).Methods(http.MethodPost)
	r.Handle("/users/{id:[0-9]+}/reactivate", perm.Require(rbac.ResourceUsers, rbac.ActionManage)(
		http.HandlerFunc(h.Reactivate))).Methods(http.MethodPost)
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeDirectoryError(w, err)
		return
	}
	if users == nil {
		users = []*User{}
	}
	httputil.WriteSuccess(w, users)
}

func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.store.ListTeams(r.Context())
	if err != nil {
		writeDirectoryError(w, err)
		return
	}
	if teams == nil {
		teams = []*Team{}
	}
	httputil.WriteSuccess(w, teams)
}

func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		writeDirectoryError(w, err)
		return
	}
	if roles == nil {
		roles = []*Role{}
	}
	httputil.WriteSuccess(w, roles)
}

func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var team Team
	if err := httputil.DecodeJSON(r, &team); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if team.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if err := h.store.CreateTeam(r.Context(), &team); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteCreated(w, &team)
}

func (h *Handlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid team id")
		return
	}
	if err := h.service.DeleteTeam(r.Context(), actorID, id); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) AddLeader(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	teamID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid team id")
		return
	}

	var payload struct {
		UserID int64 `json:"userId"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.AddTeamLeader(r.Context(), actorID, teamID, payload.UserID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) RemoveLeader(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	teamID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid team id")
		return
	}
	userID, err := httputil.PathInt64(r, "userId")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}
	if err := h.service.RemoveTeamLeader(r.Context(), actorID, teamID, userID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) SetRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	var payload struct {
		RoleID *int64 `json:"roleId"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), actorID, userID, payload.RoleID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) SetTeam(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	var payload struct {
		TeamID *int64 `json:"teamId"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.AssignTeam(r.Context(), actorID, userID, payload.TeamID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}
	if err := h.service.DeactivateUser(r.Context(), actorID, userID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) Reactivate(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	userID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}
	if err := h.service.ReactivateUser(r.Context(), actorID, userID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	var role Role
	if err := httputil.DecodeJSON(r, &role); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if role.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if err := h.service.CreateRole(r.Context(), actorID, &role); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteCreated(w, &role)
}

func (h *Handlers) SetRoleGrants(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	var payload struct {
		Grants []rbac.Grant `json:"grants"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.service.UpdateRoleGrants(r.Context(), actorID, roleID, payload.Grants); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := h.identity(r)
	roleID, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}
	if err := h.service.DeleteRole(r.Context(), actorID, roleID); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if payload.Name == "" || payload.Email == "" {
		httputil.WriteBadRequest(w, "name and email are required")
		return
	}
	if err := h.service.UpdateProfile(r.Context(), userID, payload.Name, payload.Email); err != nil {
		writeDirectoryError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
	case errors.Is(err, ErrRoleInUse):
		httputil.WriteConflict(w, "role is still assigned to users")
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteBadRequest(w, "unknown role")
	case errors.Is(err, ErrTeamNotFound):
		httputil.WriteBadRequest(w, "unknown team")
	case errors.Is(err, rbac.ErrStoreUnavailable):
		httputil.WriteServiceUnavailable(w, "directory temporarily unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}
