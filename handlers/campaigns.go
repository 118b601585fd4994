// ABOUTME: Campaign MCP tool handlers
// ABOUTME: Implements list_campaigns, start_campaign, stop_campaign and campaign_stats tools
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type CampaignHandlers struct {
	campaigns *db.CampaignsRepository
	lifecycle *campaigns.Lifecycle
}

func NewCampaignHandlers(database *db.DB) *CampaignHandlers {
	return &CampaignHandlers{
		campaigns: db.NewCampaignsRepository(database),
		lifecycle: campaigns.NewLifecycle(database),
	}
}

type CampaignOutput struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	AgentID     *string `json:"agent_id,omitempty"`
	MaxAttempts int     `json:"max_attempts"`
	CallWindow  string  `json:"call_window"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	StoppedAt   *string `json:"stopped_at,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

type ListCampaignsInput struct {
	BusinessID string `json:"business_id" jsonschema:"Business ID (required)"`
	Status     string `json:"status,omitempty" jsonschema:"Filter by status (draft, active, paused, completed)"`
}

type ListCampaignsOutput struct {
	Campaigns []CampaignOutput `json:"campaigns"`
}

func (h *CampaignHandlers) ListCampaigns(ctx context.Context, _ *mcp.CallToolRequest, input ListCampaignsInput) (*mcp.CallToolResult, ListCampaignsOutput, error) {
	businessID, err := parseID("business_id", input.BusinessID)
	if err != nil {
		return nil, ListCampaignsOutput{}, err
	}

	list, err := h.campaigns.List(ctx, businessID, input.Status)
	if err != nil {
		return nil, ListCampaignsOutput{}, fmt.Errorf("failed to list campaigns: %w", err)
	}

	result := make([]CampaignOutput, len(list))
	for i := range list {
		result[i] = campaignToOutput(&list[i])
	}
	return nil, ListCampaignsOutput{Campaigns: result}, nil
}

type CampaignRefInput struct {
	BusinessID string `json:"business_id" jsonschema:"Business ID (required)"`
	CampaignID string `json:"campaign_id" jsonschema:"Campaign ID (required)"`
}

func (h *CampaignHandlers) StartCampaign(ctx context.Context, _ *mcp.CallToolRequest, input CampaignRefInput) (*mcp.CallToolResult, CampaignOutput, error) {
	c, err := h.load(ctx, input)
	if err != nil {
		return nil, CampaignOutput{}, err
	}
	if err := h.lifecycle.Start(ctx, c); err != nil {
		return nil, CampaignOutput{}, fmt.Errorf("failed to start campaign: %w", err)
	}
	return nil, campaignToOutput(c), nil
}

func (h *CampaignHandlers) StopCampaign(ctx context.Context, _ *mcp.CallToolRequest, input CampaignRefInput) (*mcp.CallToolResult, CampaignOutput, error) {
	c, err := h.load(ctx, input)
	if err != nil {
		return nil, CampaignOutput{}, err
	}
	if err := h.lifecycle.Stop(ctx, c); err != nil {
		return nil, CampaignOutput{}, fmt.Errorf("failed to stop campaign: %w", err)
	}
	return nil, campaignToOutput(c), nil
}

type CampaignStatsOutput struct {
	CampaignID         string         `json:"campaign_id"`
	LeadsByStatus      map[string]int `json:"leads_by_status"`
	TotalLeads         int            `json:"total_leads"`
	Conversations      int            `json:"conversations"`
	TotalTalkSeconds   int            `json:"total_talk_seconds"`
	SuccessfulOutcomes int            `json:"successful_outcomes"`
}

func (h *CampaignHandlers) CampaignStats(ctx context.Context, _ *mcp.CallToolRequest, input CampaignRefInput) (*mcp.CallToolResult, CampaignStatsOutput, error) {
	c, err := h.load(ctx, input)
	if err != nil {
		return nil, CampaignStatsOutput{}, err
	}
	stats, err := h.campaigns.Stats(ctx, c.ID)
	if err != nil {
		return nil, CampaignStatsOutput{}, fmt.Errorf("failed to load stats: %w", err)
	}
	return nil, CampaignStatsOutput{
		CampaignID:         stats.CampaignID.String(),
		LeadsByStatus:      stats.LeadsByStatus,
		TotalLeads:         stats.TotalLeads,
		Conversations:      stats.Conversations,
		TotalTalkSeconds:   stats.TotalTalkSeconds,
		SuccessfulOutcomes: stats.SuccessfulOutcome,
	}, nil
}

// load returns the campaign only if it belongs to the given business.
func (h *CampaignHandlers) load(ctx context.Context, input CampaignRefInput) (*models.Campaign, error) {
	businessID, err := parseID("business_id", input.BusinessID)
	if err != nil {
		return nil, err
	}
	campaignID, err := parseID("campaign_id", input.CampaignID)
	if err != nil {
		return nil, err
	}

	c, err := h.campaigns.Get(ctx, campaignID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && c.BusinessID != businessID) {
		return nil, fmt.Errorf("campaign not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func parseID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func campaignToOutput(c *models.Campaign) CampaignOutput {
	out := CampaignOutput{
		ID:          c.ID.String(),
		Name:        c.Name,
		Status:      c.Status,
		MaxAttempts: c.MaxAttempts,
		CallWindow:  c.CallWindowStart + "-" + c.CallWindowEnd,
		StartDate:   formatTime(c.StartDate),
		EndDate:     formatTime(c.EndDate),
		StoppedAt:   formatTime(c.StoppedAt),
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
	if c.AgentID != nil {
		id := c.AgentID.String()
		out.AgentID = &id
	}
	return out
}
