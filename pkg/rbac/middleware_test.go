package rbac

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIdentity(userID int64, ok bool) Identity {
	return func(r *http.Request) (int64, bool) { return userID, ok }
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAllowed(t *testing.T) {
	snap := employeeSnapshot(7, nil, readTickets)
	engine := NewEngine(&mapSource{snapshots: map[int64]*Snapshot{7: snap}})
	mw := NewPermissionMiddleware(engine, fixedIdentity(7, true))

	rr := httptest.NewRecorder()
	mw.Require(ResourceTickets, ActionRead)(okHandler()).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireDeniedBody(t *testing.T) {
	snap := employeeSnapshot(7, nil, readTickets)
	engine := NewEngine(&mapSource{snapshots: map[int64]*Snapshot{7: snap}})
	mw := NewPermissionMiddleware(engine, fixedIdentity(7, true))

	rr := httptest.NewRecorder()
	mw.Require(ResourceTickets, ActionDelete)(okHandler()).
		ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/tickets/1", nil))

	require.Equal(t, http.StatusForbidden, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "insufficient permissions", body["error"])
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])
	assert.Equal(t, "tickets:delete", body["requiredPermission"])
}

func TestRequireUnauthenticated(t *testing.T) {
	engine := NewEngine(&mapSource{})
	mw := NewPermissionMiddleware(engine, fixedIdentity(0, false))

	rr := httptest.NewRecorder()
	mw.Require(ResourceTickets, ActionRead)(okHandler()).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireStoreUnavailable(t *testing.T) {
	engine := NewEngine(&mapSource{err: StoreError("load snapshot", errors.New("timeout"))})
	mw := NewPermissionMiddleware(engine, fixedIdentity(7, true))

	rr := httptest.NewRecorder()
	mw.Require(ResourceTickets, ActionRead)(okHandler()).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tickets", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code,
		"a store outage must surface as a 5xx, never a 403")
}
