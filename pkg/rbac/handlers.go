package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opendesk-io/opendesk/pkg/httputil"
)

// Handlers exposes permission introspection endpoints
type Handlers struct {
	engine   *Engine
	identity Identity
}

// NewHandlers creates the introspection handlers
func NewHandlers(engine *Engine, identity Identity) *Handlers {
	return &Handlers{engine: engine, identity: identity}
}

// Register mounts the introspection routes
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/rbac/me/scope", h.MyScope).Methods(http.MethodGet)
	r.HandleFunc("/rbac/check", h.Check).Methods(http.MethodPost)
}

// MyScope serves GET /rbac/me/scope: the caller's computed access scope,
// for clients that tailor their UI to visibility.
func (h *Handlers) MyScope(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	scope, err := h.engine.GetUserPermissions(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, scope)
}

// CheckRequest is the POST /rbac/check payload
type CheckRequest struct {
	Action   Action     `json:"action"`
	Resource Resource   `json:"resource"`
	Record   *RecordRef `json:"record,omitempty"`
}

// Check serves POST /rbac/check: a dry-run permission decision for the
// caller, used by clients to disable actions they cannot perform. The
// response carries the decision, never a 403; asking is always allowed.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CheckRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Action == "" || req.Resource == "" {
		httputil.WriteBadRequest(w, "action and resource are required")
		return
	}

	decision, err := h.engine.CheckRecordPermission(r.Context(), userID, req.Action, req.Resource, req.Record)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrStoreUnavailable) {
		httputil.WriteServiceUnavailable(w, "authorization temporarily unavailable")
		return
	}
	httputil.WriteInternalError(w, err)
}
