// ABOUTME: Twilio Voice SDK access tokens
// ABOUTME: Wraps the twilio-go jwt package with identity and voice grants for browser calling
package twilio

import (
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go/client/jwt"
)

// DefaultTokenTTL is how long an access token stays valid.
const DefaultTokenTTL = time.Hour

var ErrNotConfigured = errors.New("twilio is not configured")

// TokenIssuer mints access tokens for browser calling.
type TokenIssuer struct {
	AccountSID   string
	APIKeySID    string
	APIKeySecret string
	TwiMLAppSID  string
	TTL          time.Duration
}

// Issue returns a signed token for identity and its expiry.
func (i *TokenIssuer) Issue(identity string) (string, time.Time, error) {
	if i.AccountSID == "" || i.APIKeySID == "" || i.APIKeySecret == "" {
		return "", time.Time{}, ErrNotConfigured
	}
	if identity == "" {
		return "", time.Time{}, fmt.Errorf("identity is required")
	}

	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	expires := time.Now().Add(ttl)

	token := jwt.CreateAccessToken(jwt.AccessTokenParams{
		AccountSid:    i.AccountSID,
		SigningKeySid: i.APIKeySID,
		Secret:        i.APIKeySecret,
		Identity:      identity,
		Ttl:           ttl.Seconds(),
	})

	grant := &jwt.VoiceGrant{Incoming: jwt.Incoming{Allow: true}}
	if i.TwiMLAppSID != "" {
		grant.Outgoing = jwt.Outgoing{ApplicationSid: i.TwiMLAppSID}
	}
	token.AddGrant(grant)

	signed, err := token.ToJwt()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expires, nil
}
