// ABOUTME: ElevenLabs proxy endpoints for remote agents, the knowledge base and conversations
// ABOUTME: Also receives the signed post-call webhook
package web

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/conversations"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxUploadBytes  = 32 << 20
	maxWebhookBytes = 10 << 20
)

var errElevenLabsNotConfigured = newInternalError("ElevenLabs is not configured")

// remoteError maps a provider failure: missing upstream resources become a
// 404, anything else a generic 500 with the cause logged.
func remoteError(err error, resource, failure string) error {
	if elevenlabs.IsNotFound(err) {
		return NewNotFoundError(resource)
	}
	return internalError(failure, err)
}

func (s *Server) handleLinkAgent(w http.ResponseWriter, r *http.Request) {
	if s.elevenLabs == nil {
		s.writeError(w, r, errElevenLabsNotConfigured)
		return
	}
	var in struct {
		AgentID string `json:"agent_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := uuid.Parse(in.AgentID)
	if err != nil {
		s.writeError(w, r, NewValidationError("agent_id must be a valid UUID"))
		return
	}
	a, err := s.agentInTenant(r, id, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a.ElevenLabsAgentID != "" {
		s.writeError(w, r, NewValidationError("Agent is already linked to ElevenLabs"))
		return
	}

	remoteID, err := s.elevenLabs.CreateAgent(r.Context(), elevenlabs.ConfigFromAgent(a))
	if err != nil {
		s.writeError(w, r, internalError("Failed to create ElevenLabs agent", err))
		return
	}
	a.ElevenLabsAgentID = remoteID
	if err := s.agents.Update(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

// linkedAgent loads {id} and requires a remote link.
func (s *Server) linkedAgent(r *http.Request, mutate bool) (*models.Agent, error) {
	if s.elevenLabs == nil {
		return nil, errElevenLabsNotConfigured
	}
	a, err := s.loadAgent(r, mutate)
	if err != nil {
		return nil, err
	}
	if a.ElevenLabsAgentID == "" {
		return nil, NewValidationError("Agent is not linked to ElevenLabs")
	}
	return a, nil
}

func (s *Server) handleGetRemoteAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.linkedAgent(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := s.elevenLabs.GetAgent(r.Context(), a.ElevenLabsAgentID)
	if err != nil {
		s.writeError(w, r, remoteError(err, "ElevenLabs agent", "Failed to fetch ElevenLabs agent"))
		return
	}
	writeData(w, http.StatusOK, raw)
}

// handlePushAgent applies optional local edits, then pushes the agent.
func (s *Server) handlePushAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.linkedAgent(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var in agentInput
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := in.apply(a); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.agents.Update(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := s.elevenLabs.UpdateAgent(r.Context(), a.ElevenLabsAgentID, elevenlabs.ConfigFromAgent(a))
	if err != nil {
		s.writeError(w, r, remoteError(err, "ElevenLabs agent", "Failed to update ElevenLabs agent"))
		return
	}
	writeData(w, http.StatusOK, raw)
}

func (s *Server) handleUnlinkAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.linkedAgent(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.elevenLabs.DeleteAgent(r.Context(), a.ElevenLabsAgentID)
	if err != nil && !elevenlabs.IsNotFound(err) {
		s.writeError(w, r, internalError("Failed to delete ElevenLabs agent", err))
		return
	}

	a.ElevenLabsAgentID = ""
	if err := s.agents.Update(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

type documentInput struct {
	URL     string `json:"url"`
	Text    string `json:"text"`
	Name    string `json:"name"`
	AgentID string `json:"agent_id"`
}

// handleAddDocument accepts a multipart file upload or a JSON url/text
// document, optionally attaching it to an agent.
func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	if s.elevenLabs == nil {
		s.writeError(w, r, errElevenLabsNotConfigured)
		return
	}
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		in  documentInput
		doc *elevenlabs.Document
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.writeError(w, r, NewValidationError("Invalid multipart body"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, r, NewValidationError("file is required"))
			return
		}
		defer file.Close()

		in.AgentID = r.FormValue("agent_id")
		name := r.FormValue("name")
		if name == "" {
			name = header.Filename
		}
		if in.AgentID != "" {
			if _, err := s.documentAgent(r, member, in.AgentID); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		doc, err = s.elevenLabs.UploadDocument(r.Context(), name, file)
		if err != nil {
			s.writeError(w, r, internalError("Failed to upload document", err))
			return
		}
	} else {
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}
		if in.AgentID != "" {
			if _, err := s.documentAgent(r, member, in.AgentID); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		switch {
		case in.URL != "":
			doc, err = s.elevenLabs.AddURLDocument(r.Context(), in.URL, in.Name)
		case in.Text != "":
			if in.Name == "" {
				in.Name = "Text document"
			}
			doc, err = s.elevenLabs.AddTextDocument(r.Context(), in.Text, in.Name)
		default:
			s.writeError(w, r, NewValidationError("file, url or text is required"))
			return
		}
		if err != nil {
			s.writeError(w, r, internalError("Failed to add document", err))
			return
		}
	}

	err = s.documents.Add(r.Context(), &models.KnowledgeDocument{
		DocumentID: doc.ID,
		BusinessID: member.BusinessID,
		Name:       doc.Name,
		CreatedBy:  member.UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if in.AgentID != "" {
		if err := s.attachDocument(r, member, in.AgentID, doc.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeData(w, http.StatusCreated, doc)
}

func (s *Server) documentAgent(r *http.Request, member *models.TeamMember, rawID string) (*models.Agent, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, NewValidationError("agent_id must be a valid UUID")
	}
	a, err := s.agents.Get(r.Context(), id)
	if err != nil || a.BusinessID != member.BusinessID {
		return nil, NewNotFoundError("Agent")
	}
	return a, nil
}

// attachDocument appends docID to the agent's knowledge base and pushes
// the change to a linked remote agent.
func (s *Server) attachDocument(r *http.Request, member *models.TeamMember, agentID, docID string) error {
	a, err := s.documentAgent(r, member, agentID)
	if err != nil {
		return err
	}
	if !slices.Contains(a.KnowledgeBaseIDs, docID) {
		a.KnowledgeBaseIDs = append(a.KnowledgeBaseIDs, docID)
	}
	if err := s.agents.Update(r.Context(), a); err != nil {
		return err
	}
	if a.ElevenLabsAgentID != "" {
		if _, err := s.elevenLabs.UpdateAgent(r.Context(), a.ElevenLabsAgentID, elevenlabs.ConfigFromAgent(a)); err != nil {
			s.logger.Warn("failed to push knowledge base to remote agent",
				zap.String("agent_id", a.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// handleListDocuments returns the upstream listing restricted to the
// documents the caller's business uploaded.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.elevenLabs == nil {
		s.writeError(w, r, errElevenLabsNotConfigured)
		return
	}
	member, err := s.currentMember(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owned, err := s.documents.List(r.Context(), member.BusinessID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := make(map[string]bool, len(owned))
	for _, d := range owned {
		ids[d.DocumentID] = true
	}

	raw, err := s.elevenLabs.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, internalError("Failed to list documents", err))
		return
	}
	docs, err := elevenlabs.FilterDocuments(raw, func(id string) bool { return ids[id] })
	if err != nil {
		s.writeError(w, r, internalError("Failed to list documents", err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.elevenLabs == nil {
		s.writeError(w, r, errElevenLabsNotConfigured)
		return
	}
	member, err := s.currentMember(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	docID := chi.URLParam(r, "docID")
	if _, err := s.documents.Get(r.Context(), member.BusinessID, docID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = NewNotFoundError("Document")
		}
		s.writeError(w, r, err)
		return
	}

	if err := s.elevenLabs.DeleteDocument(r.Context(), docID); err != nil && !elevenlabs.IsNotFound(err) {
		s.writeError(w, r, remoteError(err, "Document", "Failed to delete document"))
		return
	}

	changed, err := s.documents.Delete(r.Context(), member.BusinessID, docID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range changed {
		a := &changed[i]
		if a.ElevenLabsAgentID == "" {
			continue
		}
		if _, err := s.elevenLabs.UpdateAgent(r.Context(), a.ElevenLabsAgentID, elevenlabs.ConfigFromAgent(a)); err != nil {
			s.logger.Warn("failed to push knowledge base to remote agent",
				zap.String("agent_id", a.ID.String()),
				zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	member, err := s.currentMember(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	detail, err := s.conversations.Fetch(r.Context(), member.BusinessID, chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, conversations.ErrNotFound) {
			err = internalError("Failed to fetch conversation", err)
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": detail.Data, "source": detail.Source})
}

func (s *Server) handleElevenLabsWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		s.writeError(w, r, NewValidationError("Invalid body"))
		return
	}

	if secret := s.cfg.ElevenLabs.WebhookSecret; secret != "" {
		if err := elevenlabs.VerifySignature(r.Header.Get(elevenlabs.SignatureHeader), body, secret, time.Now()); err != nil {
			s.logger.Warn("rejected webhook", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid signature"})
			return
		}
	}

	event, err := elevenlabs.ParseWebhookEvent(body)
	if err != nil {
		s.writeError(w, r, NewValidationError("Invalid webhook payload"))
		return
	}

	_, err = s.conversations.Ingest(r.Context(), event)
	if errors.Is(err, conversations.ErrUnresolvable) {
		s.logger.Warn("webhook matched no conversation",
			zap.String("conversation_id", event.Data.ConversationID),
			zap.String("agent_id", event.Data.AgentID))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ignored"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
