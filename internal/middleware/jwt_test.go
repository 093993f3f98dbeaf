package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldmap/internal/config"
)

// makeToken creates a signed HS256 JWT from the given secret and claims.
func makeToken(secret string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(secret))
	return signed
}

func TestNewHS256Validator(t *testing.T) {
	t.Parallel()

	v, err := NewHS256Validator("my-secret")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte("my-secret"), v.secret)

	_, err = NewHS256Validator("")
	require.Error(t, err)
}

func TestHS256Validator_Validate(t *testing.T) {
	t.Parallel()

	const secret = "test-secret-32-bytes-long-xxxxx"

	tests := []struct {
		name    string
		token   string
		wantErr string
		wantSub string
		wantIss string
		wantAud []string
	}{
		{
			name: "valid token with all claims",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-123",
				"iss": "https://auth.example.com",
				"aud": "fieldmap",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "user-123",
			wantIss: "https://auth.example.com",
			wantAud: []string{"fieldmap"},
		},
		{
			name: "valid token with only subject",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-456",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "user-456",
		},
		{
			name: "audience list",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-789",
				"aud": []string{"fieldmap", "other"},
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "user-789",
			wantAud: []string{"fieldmap", "other"},
		},
		{
			name: "expired token",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-123",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: "token verification failed",
		},
		{
			name: "wrong secret",
			token: makeToken("other-secret", jwt.MapClaims{
				"sub": "user-123",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: "token verification failed",
		},
		{
			name:    "garbage token",
			token:   "not.a.jwt",
			wantErr: "token verification failed",
		},
	}

	v, err := NewHS256Validator(secret)
	require.NoError(t, err)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := v.Validate(context.Background(), tc.token)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSub, claims.Subject)
			assert.Equal(t, tc.wantIss, claims.Issuer)
			assert.Equal(t, tc.wantAud, claims.Audience)
			assert.NotNil(t, claims.Raw)
		})
	}
}

func TestHS256Validator_RejectsUnsignedToken(t *testing.T) {
	t.Parallel()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v, err := NewHS256Validator("secret")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), signed)
	require.Error(t, err)
}

func TestNewValidator(t *testing.T) {
	t.Parallel()

	t.Run("hs256 when secret set", func(t *testing.T) {
		v, err := NewValidator(context.Background(), config.AuthConfig{JWTSecret: "secret"})
		require.NoError(t, err)
		_, ok := v.(*HS256Validator)
		assert.True(t, ok)
	})

	t.Run("nil when nothing configured", func(t *testing.T) {
		v, err := NewValidator(context.Background(), config.AuthConfig{APIKey: "key-only"})
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}
