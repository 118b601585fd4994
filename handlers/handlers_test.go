// ABOUTME: Tests for campaign and lead MCP tool handlers
// ABOUTME: Validates tool input/output, tenancy and error handling
package handlers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *db.DB
	business uuid.UUID
	campaign *models.Campaign
}

func setupTestDB(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, nil))

	b := &models.Business{Name: "Hope"}
	require.NoError(t, db.NewBusinessesRepository(d).Create(ctx, b))
	agent := &models.Agent{BusinessID: b.ID, Name: "Caller"}
	require.NoError(t, db.NewAgentsRepository(d).Create(ctx, agent))
	c := &models.Campaign{BusinessID: b.ID, Name: "Spring", AgentID: &agent.ID}
	require.NoError(t, db.NewCampaignsRepository(d).Create(ctx, c))

	return &fixture{db: d, business: b.ID, campaign: c}
}

func TestListCampaigns(t *testing.T) {
	f := setupTestDB(t)
	h := NewCampaignHandlers(f.db)
	ctx := context.Background()

	_, out, err := h.ListCampaigns(ctx, nil, ListCampaignsInput{BusinessID: f.business.String()})
	require.NoError(t, err)
	require.Len(t, out.Campaigns, 1)
	assert.Equal(t, "Spring", out.Campaigns[0].Name)
	assert.Equal(t, models.CampaignDraft, out.Campaigns[0].Status)

	_, out, err = h.ListCampaigns(ctx, nil, ListCampaignsInput{BusinessID: uuid.NewString()})
	require.NoError(t, err)
	assert.Empty(t, out.Campaigns)

	_, _, err = h.ListCampaigns(ctx, nil, ListCampaignsInput{})
	assert.EqualError(t, err, "business_id is required")
}

func TestStartStopCampaign(t *testing.T) {
	f := setupTestDB(t)
	h := NewCampaignHandlers(f.db)
	ctx := context.Background()
	ref := CampaignRefInput{BusinessID: f.business.String(), CampaignID: f.campaign.ID.String()}

	_, out, err := h.StartCampaign(ctx, nil, ref)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, out.Status)
	assert.NotNil(t, out.StartDate)

	_, _, err = h.StartCampaign(ctx, nil, ref)
	assert.Error(t, err)

	_, out, err = h.StopCampaign(ctx, nil, ref)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, out.Status)
	assert.NotNil(t, out.StoppedAt)

	// Campaigns from another business are invisible
	_, _, err = h.StartCampaign(ctx, nil, CampaignRefInput{BusinessID: uuid.NewString(), CampaignID: f.campaign.ID.String()})
	assert.EqualError(t, err, "campaign not found")
}

func TestAddAndFindLeads(t *testing.T) {
	f := setupTestDB(t)
	h := NewLeadHandlers(f.db)
	ctx := context.Background()

	_, _, err := h.AddLead(ctx, nil, AddLeadInput{BusinessID: f.business.String()})
	assert.EqualError(t, err, "first_name is required")

	_, _, err = h.AddLead(ctx, nil, AddLeadInput{BusinessID: f.business.String(), FirstName: "Ada", Phone: "12"})
	assert.EqualError(t, err, "phone must be a valid phone number")

	_, lead, err := h.AddLead(ctx, nil, AddLeadInput{
		BusinessID: f.business.String(),
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "Ada@Example.org",
		Phone:      "+15557654321",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", lead.Name)
	assert.Equal(t, "ada@example.org", lead.Email)
	assert.Equal(t, models.SourceManual, lead.Source)

	_, found, err := h.FindLeads(ctx, nil, FindLeadsInput{BusinessID: f.business.String(), Query: "Lovelace"})
	require.NoError(t, err)
	require.Len(t, found.Leads, 1)
	assert.Equal(t, lead.ID, found.Leads[0].ID)

	_, found, err = h.FindLeads(ctx, nil, FindLeadsInput{BusinessID: uuid.NewString(), Query: "Lovelace"})
	require.NoError(t, err)
	assert.Empty(t, found.Leads)
}

func TestCampaignStats(t *testing.T) {
	f := setupTestDB(t)
	ctx := context.Background()

	_, lead, err := NewLeadHandlers(f.db).AddLead(ctx, nil, AddLeadInput{BusinessID: f.business.String(), FirstName: "Ada"})
	require.NoError(t, err)
	leadID := uuid.MustParse(lead.ID)
	_, err = db.NewLeadsRepository(f.db).AssignToCampaign(ctx, f.campaign.ID, []uuid.UUID{leadID})
	require.NoError(t, err)

	_, stats, err := NewCampaignHandlers(f.db).CampaignStats(ctx, nil, CampaignRefInput{
		BusinessID: f.business.String(),
		CampaignID: f.campaign.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalLeads)
	assert.Equal(t, 1, stats.LeadsByStatus[models.CampaignLeadPending])
	assert.Equal(t, f.campaign.ID.String(), stats.CampaignID)
}

func TestNewServerRegistersTools(t *testing.T) {
	f := setupTestDB(t)
	assert.NotNil(t, NewServer(f.db, "test"))
}
