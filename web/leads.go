// ABOUTME: Lead (donor) endpoints scoped to the caller's business
// ABOUTME: Validates contact fields before they reach the dialer
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type leadInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
	DoNotCall *bool   `json:"do_not_call"`
	Status    *string `json:"status"`
	Notes     *string `json:"notes"`
}

var leadStatuses = map[string]bool{
	models.LeadNew:       true,
	models.LeadContacted: true,
	models.LeadPledged:   true,
	models.LeadDonated:   true,
	models.LeadDoNotCall: true,
}

func (in *leadInput) apply(l *models.Lead) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&l.FirstName, in.FirstName)
	set(&l.LastName, in.LastName)
	set(&l.Email, in.Email)
	set(&l.Phone, in.Phone)
	set(&l.Company, in.Company)
	if in.Notes != nil {
		l.Notes = *in.Notes
	}
	if in.DoNotCall != nil {
		l.DoNotCall = *in.DoNotCall
	}
	if in.Status != nil {
		if !leadStatuses[*in.Status] {
			return NewValidationError("status is not a valid lead status")
		}
		l.Status = *in.Status
	}
	if l.Status == models.LeadDoNotCall {
		l.DoNotCall = true
	}

	if l.FirstName == "" {
		return NewValidationError("first_name is required")
	}
	if l.Email != "" && !strings.Contains(l.Email, "@") {
		return NewValidationError("email must be a valid email address")
	}
	if l.Phone != "" && !campaigns.ValidPhone(l.Phone) {
		return NewValidationError("phone must be a valid phone number")
	}
	return nil
}

func (s *Server) loadLead(r *http.Request, mutate bool) (*models.Lead, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, NewNotFoundError("Lead")
	}
	l, err := s.leads.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, NewNotFoundError("Lead")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.memberOf(r, l.BusinessID, mutate); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.leads.List(r.Context(), member.BusinessID, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in leadInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	l := &models.Lead{BusinessID: member.BusinessID, Source: models.SourceManual}
	if err := in.apply(l); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.leads.Create(r.Context(), l); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, l)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.loadLead(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, l)
}

func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.loadLead(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in leadInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(l); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.leads.Update(r.Context(), l); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.loadLead(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.leads.Delete(r.Context(), l.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
