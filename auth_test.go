package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	h := newTestHandler(t, newMemoryBlobStore())
	h.apiTokenHash = hash
	router := h.newRouter()

	w := doRequest(router, http.MethodGet, "/api/daily", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := func(token string) int {
		r, _ := http.NewRequest(http.MethodGet, "/api/daily", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, req("wrong"))
	assert.Equal(t, http.StatusOK, req("secret-token"))

	// Health and metrics stay public.
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/metrics", nil).Code)
}
