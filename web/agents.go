// ABOUTME: Agent CRUD endpoints scoped to the caller's business
// ABOUTME: Deleting a linked agent also removes its ElevenLabs counterpart when possible
package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type agentInput struct {
	Name             *string   `json:"name"`
	Description      *string   `json:"description"`
	VoiceID          *string   `json:"voice_id"`
	Language         *string   `json:"language"`
	FirstMessage     *string   `json:"first_message"`
	SystemPrompt     *string   `json:"system_prompt"`
	KnowledgeBaseIDs *[]string `json:"knowledge_base_ids"`
	CallerID         *string   `json:"caller_id"`
	Status           *string   `json:"status"`
}

func (in *agentInput) apply(a *models.Agent) error {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{in.Description, &a.Description},
		{in.VoiceID, &a.VoiceID},
		{in.Language, &a.Language},
		{in.FirstMessage, &a.FirstMessage},
		{in.SystemPrompt, &a.SystemPrompt},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if in.KnowledgeBaseIDs != nil {
		a.KnowledgeBaseIDs = *in.KnowledgeBaseIDs
	}
	if in.CallerID != nil {
		if *in.CallerID != "" && !campaigns.ValidPhone(*in.CallerID) {
			return NewValidationError("caller_id must be a valid phone number")
		}
		a.CallerID = *in.CallerID
	}
	if in.Status != nil {
		if *in.Status != models.AgentActive && *in.Status != models.AgentInactive {
			return NewValidationError("status must be active or inactive")
		}
		a.Status = *in.Status
	}
	if a.Name == "" {
		return NewValidationError("name is required")
	}
	return nil
}

func (s *Server) loadAgent(r *http.Request, mutate bool) (*models.Agent, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, NewNotFoundError("Agent")
	}
	return s.agentInTenant(r, id, mutate)
}

func (s *Server) agentInTenant(r *http.Request, id uuid.UUID, mutate bool) (*models.Agent, error) {
	a, err := s.agents.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, NewNotFoundError("Agent")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.memberOf(r, a.BusinessID, mutate); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.agents.List(r.Context(), member.BusinessID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in agentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	a := &models.Agent{BusinessID: member.BusinessID, CreatedBy: member.UserID}
	if err := in.apply(a); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agents.Create(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.loadAgent(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.loadAgent(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in agentInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.apply(a); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agents.Update(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.loadAgent(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if a.ElevenLabsAgentID != "" && s.elevenLabs != nil {
		if err := s.elevenLabs.DeleteAgent(r.Context(), a.ElevenLabsAgentID); err != nil {
			s.logger.Warn("failed to delete remote agent",
				zap.String("agent_id", a.ID.String()),
				zap.String("elevenlabs_agent_id", a.ElevenLabsAgentID),
				zap.Error(err))
		}
	}

	if err := s.agents.Delete(r.Context(), a.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
