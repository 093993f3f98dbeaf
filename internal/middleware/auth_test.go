package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/config"
)

// echoPrincipal is a terminal handler that writes the context principal.
func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(principal))
	})
}

func authHandler(t *testing.T, cfg config.AuthConfig) http.Handler {
	t.Helper()
	validator, err := NewValidator(t.Context(), cfg)
	require.NoError(t, err)
	return Auth(cfg, validator)(echoPrincipal())
}

func TestAuth_AnonymousMode(t *testing.T) {
	handler := authHandler(t, config.AuthConfig{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, AnonymousPrincipal, rec.Body.String())
}

func TestAuth_BearerToken(t *testing.T) {
	const secret = "test-secret"
	handler := authHandler(t, config.AuthConfig{JWTSecret: secret})

	t.Run("valid token", func(t *testing.T) {
		token := makeToken(secret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-123", rec.Body.String())
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := makeToken("other-secret", jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := makeToken(secret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuth_APIKey(t *testing.T) {
	cfg := config.AuthConfig{APIKey: "s3cret-key"}

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "s3cret-key")
		rec := httptest.NewRecorder()
		authHandler(t, cfg).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, APIKeyPrincipal, rec.Body.String())
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "wrong-key")
		rec := httptest.NewRecorder()
		authHandler(t, cfg).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("custom header name", func(t *testing.T) {
		custom := config.AuthConfig{APIKey: "s3cret-key", APIKeyHeader: "X-Fieldmap-Key"}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Fieldmap-Key", "s3cret-key")
		rec := httptest.NewRecorder()
		authHandler(t, custom).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuth_JWTBeforeAPIKey(t *testing.T) {
	const secret = "test-secret"
	handler := authHandler(t, config.AuthConfig{JWTSecret: secret, APIKey: "s3cret-key"})

	token := makeToken(secret, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", "s3cret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-123", rec.Body.String(), "JWT subject wins over the API key principal")
}

func TestAuth_InvalidBearerFallsBackToAPIKey(t *testing.T) {
	handler := authHandler(t, config.AuthConfig{JWTSecret: "test-secret", APIKey: "s3cret-key"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	req.Header.Set("X-API-Key", "s3cret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, APIKeyPrincipal, rec.Body.String())
}

func TestAuth_Unauthorized(t *testing.T) {
	handler := authHandler(t, config.AuthConfig{JWTSecret: "test-secret"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, float64(401), body["code"], 0.001)
	assert.Contains(t, body["message"], "unauthorized")
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(t.Context(), "user-123")
	name, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-123", name)

	_, ok = PrincipalFromContext(t.Context())
	assert.False(t, ok)
}
