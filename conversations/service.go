// ABOUTME: Conversation detail lookups reconciled between ElevenLabs and local records
// ABOUTME: Falls back to a provider-shaped payload built from the local row when upstream has no history
package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Where a conversation detail came from.
const (
	SourceElevenLabs = "elevenlabs"
	SourceLocal      = "local"
)

var ErrNotFound = errors.New("conversation not found")

// Detail is a conversation document and its origin.
type Detail struct {
	Data   json.RawMessage
	Source string
}

// Service reads and reconciles call records.
type Service struct {
	elevenLabs    *elevenlabs.Client
	conversations *db.ConversationsRepository
	agents        *db.AgentsRepository
	leads         *db.LeadsRepository
	logger        *zap.Logger
}

// NewService returns a Service. client may be nil, in which case only
// local records are served.
func NewService(database *db.DB, client *elevenlabs.Client, logger *zap.Logger) *Service {
	return &Service{
		elevenLabs:    client,
		conversations: db.NewConversationsRepository(database),
		agents:        db.NewAgentsRepository(database),
		leads:         db.NewLeadsRepository(database),
		logger:        logger.With(zap.String("component", "conversations")),
	}
}

// Fetch returns the conversation identified by id, which is either an
// ElevenLabs conversation id or a local record UUID.
func (s *Service) Fetch(ctx context.Context, businessID uuid.UUID, id string) (*Detail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	local, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if local != nil && local.BusinessID != businessID {
		return nil, ErrNotFound
	}

	externalID := id
	if local != nil {
		externalID = local.ConversationID
	}

	if s.elevenLabs != nil && externalID != "" {
		raw, err := s.elevenLabs.GetConversation(ctx, externalID)
		if err == nil {
			if local == nil && !s.ownsRemote(ctx, businessID, raw) {
				return nil, ErrNotFound
			}
			return &Detail{Data: raw, Source: SourceElevenLabs}, nil
		}
		if !elevenlabs.IsNotFound(err) {
			return nil, fmt.Errorf("failed to fetch conversation: %w", err)
		}
		s.logger.Debug("conversation missing upstream, using local record", zap.String("conversation_id", externalID))
	}

	if local == nil {
		return nil, ErrNotFound
	}
	return s.localDetail(ctx, local)
}

// lookup finds the local row by UUID or external id. A miss is (nil, nil).
func (s *Service) lookup(ctx context.Context, id string) (*models.Conversation, error) {
	var (
		conv *models.Conversation
		err  error
	)
	if recordID, parseErr := uuid.Parse(id); parseErr == nil {
		conv, err = s.conversations.Get(ctx, recordID)
	} else {
		conv, err = s.conversations.GetByConversationID(ctx, id)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// ownsRemote reports whether an upstream-only conversation belongs to one
// of businessID's agents. Unknown agents are not visible to any tenant.
func (s *Service) ownsRemote(ctx context.Context, businessID uuid.UUID, raw json.RawMessage) bool {
	var head struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.AgentID == "" {
		return false
	}
	agent, err := s.agents.FindByElevenLabsID(ctx, head.AgentID)
	if err != nil {
		return false
	}
	return agent.BusinessID == businessID
}

func (s *Service) localDetail(ctx context.Context, c *models.Conversation) (*Detail, error) {
	doc := LocalDocument(c)

	// Prefer the remote agent id so the payload reads like the provider's.
	if c.AgentID != nil {
		if agent, err := s.agents.Get(ctx, *c.AgentID); err == nil && agent.ElevenLabsAgentID != "" {
			doc.AgentID = agent.ElevenLabsAgentID
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}
	return &Detail{Data: data, Source: SourceLocal}, nil
}

// LocalDocument renders a stored conversation in the provider's shape.
func LocalDocument(c *models.Conversation) *elevenlabs.Conversation {
	doc := &elevenlabs.Conversation{
		ConversationID: c.ConversationID,
		Status:         c.Status,
		Transcript:     make([]elevenlabs.TranscriptTurn, 0, len(c.Transcript)),
		Metadata:       elevenlabs.Metadata{CallDurationSecs: c.DurationSeconds},
		Analysis: &elevenlabs.Analysis{
			TranscriptSummary: c.Summary,
			CallSuccessful:    c.Outcome,
		},
	}
	if doc.ConversationID == "" {
		doc.ConversationID = c.ID.String()
	}
	if c.AgentID != nil {
		doc.AgentID = c.AgentID.String()
	}
	if c.StartedAt != nil {
		doc.Metadata.StartTimeUnixSecs = c.StartedAt.Unix()
	} else {
		doc.Metadata.StartTimeUnixSecs = c.CreatedAt.Unix()
	}
	for _, t := range c.Transcript {
		doc.Transcript = append(doc.Transcript, elevenlabs.TranscriptTurn(t))
	}
	return doc
}
