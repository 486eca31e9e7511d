package tickets

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opendesk-io/opendesk/pkg/httputil"
	"github.com/opendesk-io/opendesk/pkg/rbac"
)

// Handlers exposes the ticket HTTP API
type Handlers struct {
	service  *Service
	engine   *rbac.Engine
	identity rbac.Identity
}

// NewHandlers creates the ticket handlers
func NewHandlers(service *Service, engine *rbac.Engine, identity rbac.Identity) *Handlers {
	return &Handlers{service: service, engine: engine, identity: identity}
}

// Register mounts the ticket routes. Coarse permission gating happens in
// the permission middleware; record and scope decisions happen here.
func (h *Handlers) Register(r *mux.Router, perm *rbac.PermissionMiddleware) {
	r.Handle("/tickets", perm.Require(rbac.ResourceTickets, rbac.ActionRead)(
		http.HandlerFunc(h.List))).Methods(http.MethodGet)
	r.Handle("/tickets", perm.Require(rbac.ResourceTickets, rbac.ActionCreate)(
		http.HandlerFunc(h.Create))).Methods(http.MethodPost)
	r.Handle("/tickets/{id:[0-9]+}", perm.Require(rbac.ResourceTickets, rbac.ActionRead)(
		http.HandlerFunc(h.Get))).Methods(http.MethodGet)
	r.Handle("/tickets/{id:[0-9]+}", perm.Require(rbac.ResourceTickets, rbac.ActionUpdate)(
		http.HandlerFunc(h.Update))).Methods(http.MethodPut)
}

// List serves GET /tickets. An explicit teamId parameter is authorized
// before any query runs; a team outside the caller's scope is a 403, never
// an empty list.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if filter.TeamID != nil {
		allowed, err := h.engine.CanAccessTeamData(r.Context(), userID, *filter.TeamID)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		if !allowed {
			h.service.observeScopeConflict()
			httputil.WriteTeamAccessDenied(w)
			return
		}
	}

	page := httputil.ParsePagination(r, 50, 200)
	out, err := h.service.List(r.Context(), userID, filter, page)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if out == nil {
		out = []*Ticket{}
	}
	httputil.WriteSuccess(w, out)
}

// Get serves GET /tickets/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid ticket id")
		return
	}

	ticket, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, ticket)
}

// Create serves POST /tickets
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var payload Ticket
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if payload.Subject == "" {
		httputil.WriteBadRequest(w, "subject is required")
		return
	}

	ticket, err := h.service.Create(r.Context(), userID, &payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, ticket)
}

// Update serves PUT /tickets/{id}
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, err := httputil.PathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid ticket id")
		return
	}

	var payload Ticket
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ticket, err := h.service.Update(r.Context(), userID, id, &payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, ticket)
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	if denial, ok := AsDenial(err); ok {
		httputil.WritePermissionDenied(w, denial.Decision.RequiredPermission)
		return
	}
	if rbac.IsScopeConflict(err) {
		httputil.WriteTeamAccessDenied(w)
		return
	}
	if errors.Is(err, ErrTicketNotFound) {
		httputil.WriteNotFound(w, "ticket not found")
		return
	}
	h.writeEngineError(w, err)
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, rbac.ErrStoreUnavailable) {
		httputil.WriteServiceUnavailable(w, "authorization temporarily unavailable")
		return
	}
	httputil.WriteInternalError(w, err)
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter

	if teamID, ok, err := httputil.QueryInt64(r, "teamId"); err != nil {
		return f, err
	} else if ok {
		f.TeamID = &teamID
	}
	if assigneeID, ok, err := httputil.QueryInt64(r, "assigneeId"); err != nil {
		return f, err
	} else if ok {
		f.AssigneeID = &assigneeID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		if !status.Valid() {
			return f, errors.New("invalid status filter")
		}
		f.Status = &status
	}
	if raw := r.URL.Query().Get("priority"); raw != "" {
		priority := Priority(raw)
		if !priority.Valid() {
			return f, errors.New("invalid priority filter")
		}
		f.Priority = &priority
	}
	f.Search = r.URL.Query().Get("q")
	return f, nil
}
