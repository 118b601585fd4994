// ABOUTME: Outbound call placement for campaigns and test calls
// ABOUTME: Dials through ElevenLabs directly or falls back to the simulate-call edge function
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/elevenlabs"
	"github.com/callhenk/henk-sub004/models"
	"github.com/callhenk/henk-sub004/supabase"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// How a call was placed.
const (
	ViaElevenLabs   = "elevenlabs"
	ViaEdgeFunction = "edge_function"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrAgentNotLinked   = errors.New("agent is not linked to ElevenLabs")
	ErrNotConfigured    = errors.New("calling is not configured")
)

// ValidationError is a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SimulateCallInput is a one-off test call request.
type SimulateCallInput struct {
	PhoneNumber string `json:"phone_number"`
	AgentID     string `json:"agent_id,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
	LeadName    string `json:"lead_name,omitempty"`
}

// CallResult identifies a placed call.
type CallResult struct {
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"call_sid,omitempty"`
	Via            string `json:"via"`
	RecordID       string `json:"id"`
}

// Placer places outbound calls. Either provider may be nil.
type Placer struct {
	elevenLabs           *elevenlabs.Client
	functions            *supabase.Functions
	functionName         string
	defaultPhoneNumberID string

	agents        *db.AgentsRepository
	campaigns     *db.CampaignsRepository
	conversations *db.ConversationsRepository
	logger        *zap.Logger
	now           func() time.Time
}

// PlacerOptions wires Placer's providers.
type PlacerOptions struct {
	ElevenLabs           *elevenlabs.Client
	Functions            *supabase.Functions
	FunctionName         string
	DefaultPhoneNumberID string
}

func NewPlacer(database *db.DB, opts PlacerOptions, logger *zap.Logger) *Placer {
	if opts.FunctionName == "" {
		opts.FunctionName = "simulate-call"
	}
	return &Placer{
		elevenLabs:           opts.ElevenLabs,
		functions:            opts.Functions,
		functionName:         opts.FunctionName,
		defaultPhoneNumberID: opts.DefaultPhoneNumberID,
		agents:               db.NewAgentsRepository(database),
		campaigns:            db.NewCampaignsRepository(database),
		conversations:        db.NewConversationsRepository(database),
		logger:               logger.With(zap.String("component", "calls")),
		now:                  time.Now,
	}
}

// SimulateCall validates in, resolves the agent within businessID and
// places one call.
func (p *Placer) SimulateCall(ctx context.Context, businessID uuid.UUID, in SimulateCallInput) (*CallResult, error) {
	phone := strings.TrimSpace(in.PhoneNumber)
	if phone == "" {
		return nil, &ValidationError{Field: "phone_number", Message: "phone_number is required"}
	}
	if !ValidPhone(phone) {
		return nil, &ValidationError{Field: "phone_number", Message: "phone_number must be a valid phone number"}
	}
	if in.AgentID == "" && in.CampaignID == "" {
		return nil, &ValidationError{Field: "agent_id", Message: "agent_id or campaign_id is required"}
	}

	var agentID, campaignID uuid.UUID
	var err error
	if in.AgentID != "" {
		if agentID, err = uuid.Parse(in.AgentID); err != nil {
			return nil, &ValidationError{Field: "agent_id", Message: "agent_id must be a valid UUID"}
		}
	}
	if in.CampaignID != "" {
		if campaignID, err = uuid.Parse(in.CampaignID); err != nil {
			return nil, &ValidationError{Field: "campaign_id", Message: "campaign_id must be a valid UUID"}
		}
	}

	var campaign *models.Campaign
	if campaignID != uuid.Nil {
		campaign, err = p.campaigns.Get(ctx, campaignID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && campaign.BusinessID != businessID) {
			return nil, ErrCampaignNotFound
		}
		if err != nil {
			return nil, err
		}
		if agentID == uuid.Nil {
			if campaign.AgentID == nil {
				return nil, ErrNoAgent
			}
			agentID = *campaign.AgentID
		}
	}

	agent, err := p.agents.Get(ctx, agentID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && agent.BusinessID != businessID) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}

	return p.Place(ctx, CallRequest{
		PhoneNumber:   phone,
		Agent:         agent,
		Campaign:      campaign,
		LeadName:      in.LeadName,
		AllowFallback: true,
	})
}

// CallRequest is everything needed to dial one number.
type CallRequest struct {
	PhoneNumber string
	Agent       *models.Agent
	Campaign    *models.Campaign
	Lead        *models.Lead
	LeadName    string

	// AllowFallback permits the edge function when direct calling is
	// unavailable.
	AllowFallback bool
}

// Place dials once and records an initiated conversation.
func (p *Placer) Place(ctx context.Context, req CallRequest) (*CallResult, error) {
	if req.Agent.ElevenLabsAgentID == "" {
		return nil, ErrAgentNotLinked
	}

	recordID := uuid.New()
	leadName := req.LeadName
	if leadName == "" && req.Lead != nil {
		leadName = req.Lead.FullName()
	}

	vars := map[string]any{
		"henk_conversation_id": recordID.String(),
		"business_id":          req.Agent.BusinessID.String(),
		"agent_id":             req.Agent.ID.String(),
	}
	if leadName != "" {
		vars["lead_name"] = leadName
	}
	if req.Campaign != nil {
		vars["campaign_id"] = req.Campaign.ID.String()
	}
	if req.Lead != nil {
		vars["lead_id"] = req.Lead.ID.String()
	}

	result, err := p.dial(ctx, req, vars)
	if err != nil {
		return nil, err
	}
	result.RecordID = recordID.String()

	started := p.now().UTC()
	conv := &models.Conversation{
		ID:             recordID,
		BusinessID:     req.Agent.BusinessID,
		AgentID:        &req.Agent.ID,
		ConversationID: result.ConversationID,
		CallSID:        result.CallSID,
		Status:         models.ConversationInitiated,
		StartedAt:      &started,
	}
	if req.Campaign != nil {
		conv.CampaignID = &req.Campaign.ID
	}
	if req.Lead != nil {
		conv.LeadID = &req.Lead.ID
	}

	// The call is already ringing; a failed insert must not fail the request.
	if err := p.conversations.Create(ctx, conv); err != nil {
		p.logger.Error("failed to record conversation",
			zap.String("conversation_id", result.ConversationID),
			zap.Error(err))
	}

	p.logger.Info("call placed",
		zap.String("via", result.Via),
		zap.String("agent_id", req.Agent.ID.String()),
		zap.String("conversation_id", result.ConversationID))
	return result, nil
}

func (p *Placer) dial(ctx context.Context, req CallRequest, vars map[string]any) (*CallResult, error) {
	to := ToE164(req.PhoneNumber)

	if p.elevenLabs != nil {
		phoneNumberID, err := p.resolvePhoneNumberID(ctx, req)
		if err != nil {
			return nil, err
		}
		if phoneNumberID != "" {
			resp, err := p.elevenLabs.OutboundCall(ctx, elevenlabs.OutboundCallRequest{
				AgentID:       req.Agent.ElevenLabsAgentID,
				PhoneNumberID: phoneNumberID,
				ToNumber:      to,
				ClientData:    &elevenlabs.ClientData{DynamicVariables: vars},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to place outbound call: %w", err)
			}
			return &CallResult{ConversationID: resp.ConversationID, CallSID: resp.CallSID, Via: ViaElevenLabs}, nil
		}
	}

	if req.AllowFallback && p.functions != nil {
		body := map[string]any{
			"phone_number":        to,
			"agent_id":            req.Agent.ID.String(),
			"elevenlabs_agent_id": req.Agent.ElevenLabsAgentID,
			"dynamic_variables":   vars,
		}
		if req.Campaign != nil {
			body["campaign_id"] = req.Campaign.ID.String()
		}
		var resp struct {
			ConversationID string `json:"conversation_id"`
			CallSID        string `json:"call_sid"`
			CallSIDAlt     string `json:"callSid"`
		}
		if err := p.functions.Invoke(ctx, p.functionName, body, &resp); err != nil {
			return nil, fmt.Errorf("failed to invoke %s: %w", p.functionName, err)
		}
		callSID := resp.CallSID
		if callSID == "" {
			callSID = resp.CallSIDAlt
		}
		return &CallResult{ConversationID: resp.ConversationID, CallSID: callSID, Via: ViaEdgeFunction}, nil
	}

	return nil, ErrNotConfigured
}

// resolvePhoneNumberID prefers the campaign caller id, then the agent's.
func (p *Placer) resolvePhoneNumberID(ctx context.Context, req CallRequest) (string, error) {
	var preferred []string
	if req.Campaign != nil {
		preferred = append(preferred, req.Campaign.CallerID)
	}
	preferred = append(preferred, req.Agent.CallerID)

	numbers, err := p.elevenLabs.ListPhoneNumbers(ctx)
	if err != nil {
		if p.defaultPhoneNumberID != "" {
			p.logger.Warn("failed to list phone numbers, using default", zap.Error(err))
			return p.defaultPhoneNumberID, nil
		}
		return "", fmt.Errorf("failed to list phone numbers: %w", err)
	}
	return SelectPhoneNumberID(numbers, preferred, p.defaultPhoneNumberID), nil
}
