// ABOUTME: Campaign database operations
// ABOUTME: Handles campaign CRUD, status transitions and per-campaign analytics
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
)

const campaignColumns = `id, business_id, agent_id, name, description, status, caller_id, max_attempts,
	call_window_start, call_window_end, start_date, end_date, stopped_at, created_by, created_at, updated_at`

// CampaignsRepository provides CRUD operations for campaigns.
type CampaignsRepository struct {
	db *DB
}

// NewCampaignsRepository creates a new campaigns repository.
func NewCampaignsRepository(db *DB) *CampaignsRepository {
	return &CampaignsRepository{db: db}
}

// Create inserts a campaign with defaults applied.
func (r *CampaignsRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.ApplyDefaults()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.exec(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.BusinessID.String(), uuidArg(c.AgentID), c.Name, c.Description, c.Status, c.CallerID,
		c.MaxAttempts, c.CallWindowStart, c.CallWindowEnd, timeArg(c.StartDate), timeArg(c.EndDate),
		timeArg(c.StoppedAt), c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

// Get returns a campaign by ID.
func (r *CampaignsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	row := r.db.queryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id.String())
	return scanCampaign(row)
}

// List returns a business's campaigns, optionally filtered by status.
func (r *CampaignsRepository) List(ctx context.Context, businessID uuid.UUID, status string) ([]models.Campaign, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = r.db.query(ctx, `
			SELECT `+campaignColumns+` FROM campaigns
			WHERE business_id = ? AND status = ?
			ORDER BY created_at DESC
		`, businessID.String(), status)
	} else {
		rows, err = r.db.query(ctx, `
			SELECT `+campaignColumns+` FROM campaigns
			WHERE business_id = ?
			ORDER BY created_at DESC
		`, businessID.String())
	}
	if err != nil {
		return nil, err
	}
	return collectCampaigns(rows)
}

// ListByStatus returns campaigns across all tenants with the given status.
func (r *CampaignsRepository) ListByStatus(ctx context.Context, status string) ([]models.Campaign, error) {
	rows, err := r.db.query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = ?
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	return collectCampaigns(rows)
}

// Update writes the editable fields. Status and lifecycle timestamps are
// only changed through UpdateStatus.
func (r *CampaignsRepository) Update(ctx context.Context, c *models.Campaign) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := r.db.exec(ctx, `
		UPDATE campaigns
		SET agent_id = ?, name = ?, description = ?, caller_id = ?, max_attempts = ?,
			call_window_start = ?, call_window_end = ?, end_date = ?, updated_at = ?
		WHERE id = ?
	`, uuidArg(c.AgentID), c.Name, c.Description, c.CallerID, c.MaxAttempts,
		c.CallWindowStart, c.CallWindowEnd, timeArg(c.EndDate), c.UpdatedAt, c.ID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// UpdateStatus persists a lifecycle transition guarded by the status the
// caller observed, so two concurrent transitions cannot both apply.
func (r *CampaignsRepository) UpdateStatus(ctx context.Context, c *models.Campaign, fromStatus string) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := r.db.exec(ctx, `
		UPDATE campaigns
		SET status = ?, start_date = ?, stopped_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, c.Status, timeArg(c.StartDate), timeArg(c.StoppedAt), c.UpdatedAt, c.ID.String(), fromStatus)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete removes a campaign and its lead assignments.
func (r *CampaignsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.exec(ctx, `DELETE FROM campaigns WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Stats aggregates lead statuses and conversation totals for a campaign.
func (r *CampaignsRepository) Stats(ctx context.Context, id uuid.UUID) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{
		CampaignID:    id,
		LeadsByStatus: map[string]int{},
	}

	rows, err := r.db.query(ctx, `
		SELECT status, COUNT(*) FROM campaign_leads
		WHERE campaign_id = ?
		GROUP BY status
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.LeadsByStatus[status] = count
		stats.TotalLeads += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.queryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM conversations
		WHERE campaign_id = ?
	`, models.OutcomeSuccess, id.String()).Scan(&stats.Conversations, &stats.TotalTalkSeconds, &stats.SuccessfulOutcome)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func collectCampaigns(rows *sql.Rows) ([]models.Campaign, error) {
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func scanCampaign(row scanner) (*models.Campaign, error) {
	var c models.Campaign
	var agentID uuid.NullUUID
	var startDate, endDate, stoppedAt sql.NullTime

	err := row.Scan(&c.ID, &c.BusinessID, &agentID, &c.Name, &c.Description, &c.Status, &c.CallerID,
		&c.MaxAttempts, &c.CallWindowStart, &c.CallWindowEnd, &startDate, &endDate, &stoppedAt,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.AgentID = uuidPtr(agentID)
	c.StartDate = timePtr(startDate)
	c.EndDate = timePtr(endDate)
	c.StoppedAt = timePtr(stoppedAt)
	return &c, nil
}
