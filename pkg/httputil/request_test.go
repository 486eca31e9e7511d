package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x","bogus":1}`))
	err := DecodeJSON(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestPathInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "/users/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42"})

	id, err := PathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = PathInt64(r, "missing")
	assert.Error(t, err)
}

func TestQueryInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "/tickets?teamId=3", nil)

	v, ok, err := QueryInt64(r, "teamId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok, err = QueryInt64(r, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	r = httptest.NewRequest("GET", "/tickets?teamId=abc", nil)
	_, _, err = QueryInt64(r, "teamId")
	assert.Error(t, err)
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest("GET", "/tickets?limit=500&offset=20", nil)
	p := ParsePagination(r, 50, 100)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 20, p.Offset)

	r = httptest.NewRequest("GET", "/tickets", nil)
	p = ParsePagination(r, 50, 100)
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)
}
