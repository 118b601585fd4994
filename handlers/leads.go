// ABOUTME: Lead MCP tool handlers
// ABOUTME: Implements find_leads and add_lead tools
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/campaigns"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type LeadHandlers struct {
	leads *db.LeadsRepository
}

func NewLeadHandlers(database *db.DB) *LeadHandlers {
	return &LeadHandlers{leads: db.NewLeadsRepository(database)}
}

type LeadOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	DoNotCall bool   `json:"do_not_call"`
	CreatedAt string `json:"created_at"`
}

type FindLeadsInput struct {
	BusinessID string `json:"business_id" jsonschema:"Business ID (required)"`
	Query      string `json:"query,omitempty" jsonschema:"Search query (searches name, email and phone)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type FindLeadsOutput struct {
	Leads []LeadOutput `json:"leads"`
}

func (h *LeadHandlers) FindLeads(ctx context.Context, _ *mcp.CallToolRequest, input FindLeadsInput) (*mcp.CallToolResult, FindLeadsOutput, error) {
	businessID, err := parseID("business_id", input.BusinessID)
	if err != nil {
		return nil, FindLeadsOutput{}, err
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	leads, err := h.leads.List(ctx, businessID, input.Query, limit)
	if err != nil {
		return nil, FindLeadsOutput{}, fmt.Errorf("failed to find leads: %w", err)
	}

	result := make([]LeadOutput, len(leads))
	for i := range leads {
		result[i] = leadToOutput(&leads[i])
	}
	return nil, FindLeadsOutput{Leads: result}, nil
}

type AddLeadInput struct {
	BusinessID string `json:"business_id" jsonschema:"Business ID (required)"`
	FirstName  string `json:"first_name" jsonschema:"Donor first name (required)"`
	LastName   string `json:"last_name,omitempty" jsonschema:"Donor last name"`
	Email      string `json:"email,omitempty" jsonschema:"Email address"`
	Phone      string `json:"phone,omitempty" jsonschema:"Phone number"`
	Company    string `json:"company,omitempty" jsonschema:"Organization the donor belongs to"`
	Notes      string `json:"notes,omitempty" jsonschema:"Additional notes about the donor"`
}

func (h *LeadHandlers) AddLead(ctx context.Context, _ *mcp.CallToolRequest, input AddLeadInput) (*mcp.CallToolResult, LeadOutput, error) {
	businessID, err := parseID("business_id", input.BusinessID)
	if err != nil {
		return nil, LeadOutput{}, err
	}
	if strings.TrimSpace(input.FirstName) == "" {
		return nil, LeadOutput{}, fmt.Errorf("first_name is required")
	}
	if input.Phone != "" && !campaigns.ValidPhone(input.Phone) {
		return nil, LeadOutput{}, fmt.Errorf("phone must be a valid phone number")
	}

	lead := &models.Lead{
		BusinessID: businessID,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Email:      strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:      strings.TrimSpace(input.Phone),
		Company:    input.Company,
		Notes:      input.Notes,
		Source:     models.SourceManual,
	}
	if err := h.leads.Create(ctx, lead); err != nil {
		return nil, LeadOutput{}, fmt.Errorf("failed to create lead: %w", err)
	}
	return nil, leadToOutput(lead), nil
}

func leadToOutput(l *models.Lead) LeadOutput {
	return LeadOutput{
		ID:        l.ID.String(),
		Name:      l.FullName(),
		Email:     l.Email,
		Phone:     l.Phone,
		Company:   l.Company,
		Source:    l.Source,
		Status:    l.Status,
		DoNotCall: l.DoNotCall,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}
