package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthedRoutes(cfg AuthConfig) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return NewAuthMiddleware(cfg)(ok)
}

func TestAuthMiddleware_BearerKey(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{APIKey: "dp_secret"})

	req := httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer dp_secret")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthMiddleware_XAPIKeyHeader(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{APIKey: "dp_secret"})

	req := httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil)
	req.Header.Set("X-API-Key", "dp_secret")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthMiddleware_MissingCredentials(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{APIKey: "dp_secret"})

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestAuthMiddleware_InvalidKey(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{APIKey: "dp_secret"})

	req := httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer dp_wrong")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestAuthMiddleware_FailsClosedWhenUnconfigured(t *testing.T) {
	// A client presenting a key against a server with no key configured
	// is a deployment error, not an open door.
	routes := newAuthedRoutes(AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer dp_anything")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthMiddleware_InsecureDevBypass(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{AllowInsecureDev: true})

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/run-1/artifacts", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthMiddleware_HealthIsOpen(t *testing.T) {
	routes := newAuthedRoutes(AuthConfig{APIKey: "dp_secret"})

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, APIKeyPrefix))
	assert.NotEqual(t, a, b)
	assert.Greater(t, len(a), 30)
}
