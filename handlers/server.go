// ABOUTME: MCP server assembly for operator tools
// ABOUTME: Registers every campaign and lead tool on one server
package handlers

import (
	"github.com/callhenk/henk-sub004/db"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds the MCP server with all tools registered.
func NewServer(database *db.DB, version string) *mcp.Server {
	campaignHandlers := NewCampaignHandlers(database)
	leadHandlers := NewLeadHandlers(database)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "henk",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_campaigns",
		Description: "List a business's fundraising campaigns, optionally filtered by status",
	}, campaignHandlers.ListCampaigns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_campaign",
		Description: "Activate a draft or paused campaign so the dialer starts calling its leads",
	}, campaignHandlers.StartCampaign)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop_campaign",
		Description: "Pause an active campaign",
	}, campaignHandlers.StopCampaign)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "campaign_stats",
		Description: "Lead counts per status, conversations and talk time for a campaign",
	}, campaignHandlers.CampaignStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_leads",
		Description: "Search a business's donor leads by name, email or phone",
	}, leadHandlers.FindLeads)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_lead",
		Description: "Add a donor lead to a business",
	}, leadHandlers.AddLead)

	return server
}
