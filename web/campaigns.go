// ABOUTME: Campaign endpoints: CRUD, lifecycle transitions, lead assignment and stats
// ABOUTME: Also hosts the simulate-call proxy that places a single test call
package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type campaignInput struct {
	Name            *string    `json:"name"`
	Description     *string    `json:"description"`
	AgentID         *string    `json:"agent_id"`
	CallerID        *string    `json:"caller_id"`
	MaxAttempts     *int       `json:"max_attempts"`
	CallWindowStart *string    `json:"call_window_start"`
	CallWindowEnd   *string    `json:"call_window_end"`
	EndDate         *time.Time `json:"end_date"`
}

// apply copies set fields onto c. Status is never writable here.
func (in *campaignInput) apply(c *models.Campaign) error {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.AgentID != nil {
		if *in.AgentID == "" {
			c.AgentID = nil
		} else {
			id, err := uuid.Parse(*in.AgentID)
			if err != nil {
				return NewValidationError("agent_id must be a valid UUID")
			}
			c.AgentID = &id
		}
	}
	if in.CallerID != nil {
		if *in.CallerID != "" && !campaigns.ValidPhone(*in.CallerID) {
			return NewValidationError("caller_id must be a valid phone number")
		}
		c.CallerID = *in.CallerID
	}
	if in.MaxAttempts != nil {
		if *in.MaxAttempts < 1 {
			return NewValidationError("max_attempts must be at least 1")
		}
		c.MaxAttempts = *in.MaxAttempts
	}
	for _, w := range []struct {
		value *string
		field *string
		name  string
	}{
		{in.CallWindowStart, &c.CallWindowStart, "call_window_start"},
		{in.CallWindowEnd, &c.CallWindowEnd, "call_window_end"},
	} {
		if w.value == nil {
			continue
		}
		if _, err := time.Parse("15:04", *w.value); err != nil {
			return NewValidationError(w.name + " must be HH:MM")
		}
		*w.field = *w.value
	}
	if in.CallWindowStart != nil || in.CallWindowEnd != nil {
		start, end := c.CallWindowStart, c.CallWindowEnd
		if start == "" {
			start = models.DefaultCallWindowStart
		}
		if end == "" {
			end = models.DefaultCallWindowEnd
		}
		if start == end {
			return NewValidationError("call_window_start and call_window_end must differ")
		}
	}
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		c.EndDate = &end
	}
	if c.Name == "" {
		return NewValidationError("name is required")
	}
	return nil
}

// checkAgent rejects agents outside the campaign's business.
func (s *Server) checkAgent(r *http.Request, c *models.Campaign) error {
	if c.AgentID == nil {
		return nil
	}
	agent, err := s.agents.Get(r.Context(), *c.AgentID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && agent.BusinessID != c.BusinessID) {
		return NewNotFoundError("Agent")
	}
	return err
}

// loadCampaign reads {id} and checks the caller's membership in its business.
func (s *Server) loadCampaign(r *http.Request, mutate bool) (*models.Campaign, *models.TeamMember, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, NewNotFoundError("Campaign")
	}
	c, err := s.campaigns.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, NewNotFoundError("Campaign")
	}
	if err != nil {
		return nil, nil, err
	}
	member, err := s.memberOf(r, c.BusinessID, mutate)
	if err != nil {
		return nil, nil, err
	}
	return c, member, nil
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.campaigns.List(r.Context(), member.BusinessID, r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in campaignInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	c := &models.Campaign{BusinessID: member.BusinessID, CreatedBy: member.UserID}
	if err := in.apply(c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.checkAgent(r, c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in campaignInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.checkAgent(r, c); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.campaigns.Update(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.Status != models.CampaignDraft && c.Status != models.CampaignPaused {
		s.writeError(w, r, NewValidationError("Only draft or paused campaigns can be deleted"))
		return
	}
	if err := s.campaigns.Delete(r.Context(), c.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.lifecycle.Start(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": c, "message": "Campaign started"})
}

func (s *Server) handleStopCampaign(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.lifecycle.Stop(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": c, "message": "Campaign stopped"})
}

func (s *Server) handleSimulateCall(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in campaigns.SimulateCallInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.placer.SimulateCall(r.Context(), member.BusinessID, in)
	if err != nil {
		var validation *campaigns.ValidationError
		if !errors.As(err, &validation) && !isDomainError(err) {
			err = internalError("Failed to place call", err)
		}
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// isDomainError reports whether err is one of the call placement sentinels
// with its own client message.
func isDomainError(err error) bool {
	for _, target := range []error{
		campaigns.ErrCampaignNotFound, campaigns.ErrAgentNotFound, campaigns.ErrAgentNotLinked,
		campaigns.ErrNoAgent, campaigns.ErrNotConfigured,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) handleListCampaignLeads(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.leads.ListCampaignLeads(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleAssignLeads(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if c.Status == models.CampaignCompleted {
		s.writeError(w, r, NewValidationError("Campaign is completed"))
		return
	}

	var in struct {
		LeadIDs []string `json:"lead_ids"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(in.LeadIDs) == 0 {
		s.writeError(w, r, NewValidationError("lead_ids is required"))
		return
	}

	ids := make([]uuid.UUID, 0, len(in.LeadIDs))
	for _, raw := range in.LeadIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, NewValidationError("lead_ids must contain valid UUIDs"))
			return
		}
		lead, err := s.leads.Get(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) || (err == nil && lead.BusinessID != c.BusinessID) {
			s.writeError(w, r, NewNotFoundError("Lead"))
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ids = append(ids, id)
	}

	added, err := s.leads.AssignToCampaign(r.Context(), c.ID, ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"added": added})
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	c, _, err := s.loadCampaign(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.campaigns.Stats(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
