// ABOUTME: Tests for session token verification
// ABOUTME: Covers valid, expired, wrongly signed and header/cookie extraction cases
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestVerifyValidToken(t *testing.T) {
	token, err := Sign(testSecret, "user-123", "ops@example.org", time.Hour)
	require.NoError(t, err)

	user, err := NewVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.Equal(t, "ops@example.org", user.Email)
}

func TestVerifyRejects(t *testing.T) {
	expired, err := Sign(testSecret, "user-123", "", -time.Minute)
	require.NoError(t, err)

	otherSecret, err := Sign("another-secret", "user-123", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"no subject", noSubject},
	}

	v := NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	token, err := Sign(testSecret, "user-123", "", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("").Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))
}
