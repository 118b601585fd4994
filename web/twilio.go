// ABOUTME: Twilio browser-calling endpoints: access tokens, TwiML and status callbacks
// ABOUTME: Provider callbacks are authenticated by X-Twilio-Signature when an auth token is set
package web

import (
	"net/http"
	"strconv"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/twilio"
	"go.uber.org/zap"
)

// twilioSignature rejects callbacks that Twilio did not sign.
func (s *Server) twilioSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Twilio.AuthToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, NewValidationError("Invalid form body"))
			return
		}
		if !twilio.ValidSignature(token, externalURL(r), r.PostForm, r.Header.Get(twilio.SignatureHeader)) {
			s.logger.Warn("rejected twilio callback", zap.String("path", r.URL.Path))
			s.writeError(w, r, NewForbiddenError("Invalid Twilio signature"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// externalURL rebuilds the URL Twilio called, honoring a TLS-terminating proxy.
func externalURL(r *http.Request) string {
	return externalOrigin(r) + r.URL.RequestURI()
}

func externalOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleTwilioToken(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		s.writeError(w, r, newInternalError("Twilio is not configured"))
		return
	}
	user := userFromContext(r.Context())
	if user == nil {
		s.writeError(w, r, NewAuthError())
		return
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.writeError(w, r, internalError("Failed to issue token", err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"token":      token,
		"identity":   user.ID,
		"expires_at": expires,
	})
}

func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, NewValidationError("Invalid form body"))
		return
	}

	to := r.PostForm.Get("To")
	if to != "" {
		if !campaigns.ValidPhone(to) {
			s.writeError(w, r, NewValidationError("To must be a valid phone number"))
			return
		}
		to = campaigns.ToE164(to)
	}

	body, err := twilio.DialTwiML(to, s.cfg.Twilio.CallerID, externalOrigin(r)+"/api/twilio/status")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, NewValidationError("Invalid form body"))
		return
	}
	duration, _ := strconv.Atoi(r.PostForm.Get("CallDuration"))

	err := s.conversations.ApplyCallStatus(r.Context(), r.PostForm.Get("CallSid"), r.PostForm.Get("CallStatus"), duration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
