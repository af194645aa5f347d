package identity

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderVerifier(t *testing.T) {
	v := HeaderVerifier{Header: "x-user-id", Anonymous: "anonymous"}

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("x-user-id", "user-42")
	id, err := v.Verify(req)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	id, err = v.Verify(httptest.NewRequest("POST", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "anonymous", id)

	_, err = v.Required().Verify(httptest.NewRequest("POST", "/", nil))
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier("secret")
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		header  string
		wantID  string
		wantErr error
	}{
		{"valid", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"sub": "u1", "exp": exp}), "u1", nil},
		{"missing", "", "", ErrMissingIdentity},
		{"not bearer", "Basic abc", "", ErrInvalidToken},
		{"wrong secret", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u1", "exp": exp}), "", ErrInvalidToken},
		{"wrong alg", "Bearer " + signed(t, jwt.SigningMethodHS512, []byte("secret"), jwt.MapClaims{"sub": "u1", "exp": exp}), "", ErrInvalidToken},
		{"expired", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), "", ErrInvalidToken},
		{"no subject", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("secret"), jwt.MapClaims{"exp": exp}), "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			id, err := v.Verify(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, HeaderVerifier{}, FromConfig(config.IdentityConfig{Mode: "header", Header: "x-user-id"}))
	assert.IsType(t, &JWTVerifier{}, FromConfig(config.IdentityConfig{Mode: "jwt", JWTSecret: "s"}))
}
