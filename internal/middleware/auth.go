package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"fieldmap/internal/config"
)

type principalKey struct{}

// WithPrincipal stores the principal name in the context.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext extracts the principal name from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok
}

// Principal names assigned by the auth middleware when the request carries
// no subject of its own.
const (
	AnonymousPrincipal = "anonymous"
	APIKeyPrincipal    = "api-key"
)

// Auth tries a JWT Bearer token first, then the API key header. Returns 401
// if both fail. When no scheme is configured every request passes as
// AnonymousPrincipal.
func Auth(cfg config.AuthConfig, validator JWTValidator) func(http.Handler) http.Handler {
	var keyHash []byte
	if cfg.APIKey != "" {
		sum := sha256.Sum256([]byte(cfg.APIKey))
		keyHash = sum[:]
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Anonymous() {
				ctx := WithPrincipal(r.Context(), AnonymousPrincipal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Try JWT Bearer token
			if auth := r.Header.Get("Authorization"); validator != nil && strings.HasPrefix(auth, "Bearer ") {
				tokenStr := strings.TrimPrefix(auth, "Bearer ")
				claims, err := validator.Validate(r.Context(), tokenStr)
				if err == nil && claims.Subject != "" {
					ctx := WithPrincipal(r.Context(), claims.Subject)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Try API key
			if key := r.Header.Get(header); key != "" && keyHash != nil {
				sum := sha256.Sum256([]byte(key))
				if subtle.ConstantTimeCompare(sum[:], keyHash) == 1 {
					ctx := WithPrincipal(r.Context(), APIKeyPrincipal)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Both methods failed
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    401,
				"message": "unauthorized: provide a valid JWT Bearer token or API key",
			})
		})
	}
}
