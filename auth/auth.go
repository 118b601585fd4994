// ABOUTME: Supabase session token verification
// ABOUTME: Validates HS256 access tokens and extracts the calling user
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SessionCookie is the cookie the web app stores the access token in.
const SessionCookie = "sb-access-token"

// ErrUnauthorized is returned for missing, malformed or expired tokens.
var ErrUnauthorized = errors.New("unauthorized")

// User is the authenticated caller.
type User struct {
	ID    string
	Email string
}

// Claims is the subset of the Supabase access token we rely on.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks tokens signed with the project's JWT secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token. Any failure is ErrUnauthorized
// wrapped with the parser's reason.
func (v *Verifier) Verify(token string) (*User, error) {
	if token == "" || len(v.secret) == 0 {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	return &User{ID: claims.Subject, Email: claims.Email}, nil
}

// Sign issues a token for userID. Used by tooling and tests; production
// tokens come from Supabase Auth.
func Sign(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[7:]); token != "" {
			return token
		}
	}

	c, err := r.Cookie(SessionCookie)
	if err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
