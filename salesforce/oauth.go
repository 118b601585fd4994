// ABOUTME: OAuth configuration and state handling for Salesforce connections
// ABOUTME: Signs the authorize state and converts tokens to stored integration credentials
package salesforce

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/config"
	"golang.org/x/oauth2"
)

var ErrInvalidState = errors.New("invalid oauth state")

// NewOAuthConfig creates OAuth2 config for the Salesforce login host.
func NewOAuthConfig(cfg config.SalesforceConfig) *oauth2.Config {
	loginURL := strings.TrimRight(cfg.LoginURL, "/")
	if loginURL == "" {
		loginURL = "https://login.salesforce.com"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"api", "refresh_token"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   loginURL + "/services/oauth2/authorize",
			TokenURL:  loginURL + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// StateTTL bounds how long an authorize redirect may take to come back.
const StateTTL = 15 * time.Minute

// State travels through the authorize redirect and identifies who started
// the connection.
type State struct {
	BusinessID string `json:"business_id"`
	UserID     string `json:"user_id"`
	Nonce      string `json:"nonce"`
	ReturnTo   string `json:"return_to,omitempty"`
	IssuedAt   int64  `json:"iat"`
}

// NewState builds a state with a random nonce.
func NewState(businessID, userID, returnTo string) (State, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return State{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return State{
		BusinessID: businessID,
		UserID:     userID,
		Nonce:      hex.EncodeToString(nonce),
		ReturnTo:   SafeReturnPath(returnTo),
		IssuedAt:   time.Now().Unix(),
	}, nil
}

// StateCodec encodes states as unpadded base64url JSON followed by a dot and
// an HMAC-SHA256 of the encoded JSON.
type StateCodec struct {
	secret []byte
	now    func() time.Time
}

func NewStateCodec(secret string) *StateCodec {
	return &StateCodec{secret: []byte(secret), now: time.Now}
}

func (c *StateCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Encode renders and signs s.
func (c *StateCodec) Encode(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(data)
	return payload + "." + c.sign(payload), nil
}

// Decode verifies and parses an encoded state.
func (c *StateCodec) Decode(encoded string) (State, error) {
	var s State
	payload, sig, ok := strings.Cut(encoded, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(c.sign(payload))) {
		return s, fmt.Errorf("%w: bad signature", ErrInvalidState)
	}
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.BusinessID == "" || s.UserID == "" || s.Nonce == "" {
		return s, fmt.Errorf("%w: missing business, user or nonce", ErrInvalidState)
	}
	if age := c.now().Sub(time.Unix(s.IssuedAt, 0)); age > StateTTL || age < -time.Minute {
		return s, fmt.Errorf("%w: expired", ErrInvalidState)
	}
	s.ReturnTo = SafeReturnPath(s.ReturnTo)
	return s, nil
}

// SafeReturnPath keeps only same-site absolute paths.
func SafeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "/home/integrations"
	}
	return p
}

// Credential keys stored on the integration row.
const (
	credAccessToken  = "access_token"
	credRefreshToken = "refresh_token"
	credTokenType    = "token_type"
	credExpiry       = "expiry"
	credInstanceURL  = "instance_url"
)

// CredentialsFromToken flattens a token for storage.
func CredentialsFromToken(tok *oauth2.Token) map[string]string {
	creds := map[string]string{
		credAccessToken:  tok.AccessToken,
		credRefreshToken: tok.RefreshToken,
		credTokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		creds[credExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	if instance, ok := tok.Extra("instance_url").(string); ok && instance != "" {
		creds[credInstanceURL] = instance
	}
	return creds
}

// TokenFromCredentials rebuilds a token from stored credentials.
func TokenFromCredentials(creds map[string]string) (*oauth2.Token, error) {
	if creds[credAccessToken] == "" && creds[credRefreshToken] == "" {
		return nil, errors.New("salesforce integration has no stored token")
	}
	tok := &oauth2.Token{
		AccessToken:  creds[credAccessToken],
		RefreshToken: creds[credRefreshToken],
		TokenType:    creds[credTokenType],
	}
	if raw := creds[credExpiry]; raw != "" {
		if expiry, err := time.Parse(time.RFC3339, raw); err == nil {
			tok.Expiry = expiry
		}
	}
	return tok, nil
}
