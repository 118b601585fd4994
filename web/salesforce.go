// ABOUTME: Salesforce OAuth connect flow and contact sync endpoints
// ABOUTME: The callback is public and trusts only a state this server signed
package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/callhenk/henk-sub004/salesforce"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var errSalesforceNotConfigured = newInternalError("Salesforce is not configured")

func (s *Server) handleSalesforceAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		s.writeError(w, r, errSalesforceNotConfigured)
		return
	}
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	state, err := salesforce.NewState(member.BusinessID.String(), member.UserID, r.URL.Query().Get("return_to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	encoded, err := s.oauthState.Encode(state)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(encoded, oauth2.AccessTypeOffline), http.StatusFound)
}

// handleSalesforceCallback finishes the connect flow and always redirects
// back to the dashboard with a success or error query parameter.
func (s *Server) handleSalesforceCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		s.writeError(w, r, errSalesforceNotConfigured)
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.logger.Warn("salesforce authorization denied",
			zap.String("error", e),
			zap.String("description", q.Get("error_description")))
		s.redirectToApp(w, r, "", "error", "salesforce_denied")
		return
	}

	code := q.Get("code")
	if code == "" {
		s.writeError(w, r, NewValidationError("Missing authorization code"))
		return
	}
	state, err := s.oauthState.Decode(q.Get("state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	businessID, err := uuid.Parse(state.BusinessID)
	if err != nil {
		s.writeError(w, r, salesforce.ErrInvalidState)
		return
	}

	member, err := s.businesses.Membership(r.Context(), state.UserID, businessID)
	if err == nil {
		_, err = checkMember(member, true)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = errNoMembership
		}
		s.logger.Warn("salesforce callback rejected", zap.String("user_id", state.UserID), zap.Error(err))
		s.redirectToApp(w, r, state.ReturnTo, "error", "salesforce_forbidden")
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("salesforce token exchange failed", zap.Error(err))
		s.redirectToApp(w, r, state.ReturnTo, "error", "salesforce_exchange_failed")
		return
	}

	creds := salesforce.CredentialsFromToken(tok)
	integration := &models.Integration{
		BusinessID:  businessID,
		Provider:    models.ProviderSalesforce,
		Status:      models.IntegrationActive,
		Credentials: creds,
		Config:      map[string]string{"instance_url": creds["instance_url"]},
		CreatedBy:   state.UserID,
	}
	if err := s.integrations.Upsert(r.Context(), integration); err != nil {
		s.logger.Error("failed to save salesforce integration", zap.Error(err))
		s.redirectToApp(w, r, state.ReturnTo, "error", "salesforce_save_failed")
		return
	}

	s.logger.Info("salesforce connected", zap.String("business_id", businessID.String()))
	s.redirectToApp(w, r, state.ReturnTo, "success", "salesforce_connected")
}

func (s *Server) redirectToApp(w http.ResponseWriter, r *http.Request, returnTo, key, value string) {
	target := strings.TrimRight(s.cfg.AppURL, "/") + salesforce.SafeReturnPath(returnTo)
	http.Redirect(w, r, target+"?"+url.Values{key: {value}}.Encode(), http.StatusFound)
}

func (s *Server) handleSalesforceSync(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.writeError(w, r, errSalesforceNotConfigured)
		return
	}
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, s.httpClient)
	result, err := s.importer.Sync(ctx, member.BusinessID)
	if err != nil {
		if !errors.Is(err, salesforce.ErrNotConnected) {
			err = internalError("Salesforce sync failed", err)
		}
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
