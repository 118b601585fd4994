// ABOUTME: Lead and campaign-lead database operations
// ABOUTME: Handles donor CRUD, source deduplication lookups and dialer claiming
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
)

const leadColumns = `id, business_id, first_name, last_name, email, phone, company, source, source_id,
	do_not_call, status, notes, created_at, updated_at`

// LeadsRepository provides CRUD operations for leads and their campaign assignments.
type LeadsRepository struct {
	db *DB
}

// NewLeadsRepository creates a new leads repository.
func NewLeadsRepository(db *DB) *LeadsRepository {
	return &LeadsRepository{db: db}
}

// Create inserts a new lead.
func (r *LeadsRepository) Create(ctx context.Context, l *models.Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Source == "" {
		l.Source = models.SourceManual
	}
	if l.Status == "" {
		l.Status = models.LeadNew
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := r.db.exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID.String(), l.BusinessID.String(), l.FirstName, l.LastName, l.Email, l.Phone, l.Company,
		l.Source, nullString(l.SourceID), l.DoNotCall, l.Status, l.Notes, l.CreatedAt, l.UpdatedAt)
	return err
}

// Get returns a lead by ID.
func (r *LeadsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	row := r.db.queryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id.String())
	return scanLead(row)
}

// FindBySource returns the lead imported from an external system record.
func (r *LeadsRepository) FindBySource(ctx context.Context, businessID uuid.UUID, source, sourceID string) (*models.Lead, error) {
	row := r.db.queryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE business_id = ? AND source = ? AND source_id = ?
	`, businessID.String(), source, sourceID)
	return scanLead(row)
}

// FindByEmail returns the oldest lead in the business with a matching email.
func (r *LeadsRepository) FindByEmail(ctx context.Context, businessID uuid.UUID, email string) (*models.Lead, error) {
	row := r.db.queryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE business_id = ? AND LOWER(email) = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, businessID.String(), strings.ToLower(strings.TrimSpace(email)))
	return scanLead(row)
}

// List searches a business's leads by name, email or phone.
func (r *LeadsRepository) List(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error

	if query != "" {
		searchPattern := "%" + strings.ToLower(query) + "%"
		rows, err = r.db.query(ctx, `
			SELECT `+leadColumns+` FROM leads
			WHERE business_id = ?
				AND (LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?)
			ORDER BY created_at DESC
			LIMIT ?
		`, businessID.String(), searchPattern, searchPattern, searchPattern, searchPattern, limit)
	} else {
		rows, err = r.db.query(ctx, `
			SELECT `+leadColumns+` FROM leads
			WHERE business_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, businessID.String(), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// Update writes every mutable field of the lead.
func (r *LeadsRepository) Update(ctx context.Context, l *models.Lead) error {
	l.UpdatedAt = time.Now().UTC()

	res, err := r.db.exec(ctx, `
		UPDATE leads
		SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?, source = ?, source_id = ?,
			do_not_call = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, l.FirstName, l.LastName, l.Email, l.Phone, l.Company, l.Source, nullString(l.SourceID),
		l.DoNotCall, l.Status, l.Notes, l.UpdatedAt, l.ID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete removes a lead and its campaign assignments.
func (r *LeadsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.exec(ctx, `DELETE FROM leads WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// AssignToCampaign adds leads to a campaign as pending. Existing
// assignments are left untouched. Returns how many were added.
func (r *LeadsRepository) AssignToCampaign(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	now := time.Now().UTC()
	added := 0
	for _, leadID := range leadIDs {
		res, err := tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO campaign_leads (campaign_id, lead_id, status, attempts, outcome, created_at, updated_at)
			VALUES (?, ?, ?, 0, '', ?, ?)
			ON CONFLICT (campaign_id, lead_id) DO NOTHING
		`), campaignID.String(), leadID.String(), models.CampaignLeadPending, now, now)
		if err != nil {
			return 0, fmt.Errorf("failed to assign lead %s: %w", leadID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// CampaignLeadWithLead pairs an assignment with the lead row it points at.
type CampaignLeadWithLead struct {
	models.CampaignLead
	Lead models.Lead `json:"lead"`
}

// ListCampaignLeads returns all assignments of a campaign with their leads.
func (r *LeadsRepository) ListCampaignLeads(ctx context.Context, campaignID uuid.UUID) ([]CampaignLeadWithLead, error) {
	rows, err := r.db.query(ctx, `
		SELECT cl.campaign_id, cl.lead_id, cl.status, cl.attempts, cl.last_attempt_at, cl.outcome, cl.created_at, cl.updated_at,
			l.id, l.business_id, l.first_name, l.last_name, l.email, l.phone, l.company, l.source, l.source_id,
			l.do_not_call, l.status, l.notes, l.created_at, l.updated_at
		FROM campaign_leads cl
		JOIN leads l ON l.id = cl.lead_id
		WHERE cl.campaign_id = ?
		ORDER BY cl.created_at ASC
	`, campaignID.String())
	if err != nil {
		return nil, err
	}
	return collectCampaignLeads(rows)
}

// GetCampaignLead returns a single assignment.
func (r *LeadsRepository) GetCampaignLead(ctx context.Context, campaignID, leadID uuid.UUID) (*models.CampaignLead, error) {
	var cl models.CampaignLead
	var lastAttempt sql.NullTime
	err := r.db.queryRow(ctx, `
		SELECT campaign_id, lead_id, status, attempts, last_attempt_at, outcome, created_at, updated_at
		FROM campaign_leads
		WHERE campaign_id = ? AND lead_id = ?
	`, campaignID.String(), leadID.String()).Scan(&cl.CampaignID, &cl.LeadID, &cl.Status, &cl.Attempts,
		&lastAttempt, &cl.Outcome, &cl.CreatedAt, &cl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cl.LastAttemptAt = timePtr(lastAttempt)
	return &cl, nil
}

// OutcomeTimedOut is recorded on assignments requeued by RequeueStale.
const OutcomeTimedOut = "timed_out"

// ClaimDue selects up to limit callable assignments of a campaign and marks
// them in_progress with an incremented attempt count, in one transaction.
// Callable means pending, or failed with attempts below maxAttempts, and the
// lead is not flagged do-not-call.
func (r *LeadsRepository) ClaimDue(ctx context.Context, campaignID uuid.UUID, maxAttempts, limit int) ([]CampaignLeadWithLead, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	query := `
		SELECT cl.campaign_id, cl.lead_id, cl.status, cl.attempts, cl.last_attempt_at, cl.outcome, cl.created_at, cl.updated_at,
			l.id, l.business_id, l.first_name, l.last_name, l.email, l.phone, l.company, l.source, l.source_id,
			l.do_not_call, l.status, l.notes, l.created_at, l.updated_at
		FROM campaign_leads cl
		JOIN leads l ON l.id = cl.lead_id
		WHERE cl.campaign_id = ?
			AND l.do_not_call = ?
			AND l.phone <> ''
			AND (cl.status = ? OR (cl.status = ? AND cl.attempts < ?))
		ORDER BY cl.attempts ASC, cl.created_at ASC
		LIMIT ?`
	if r.db.dialect == DialectPostgres {
		query += ` FOR UPDATE OF cl SKIP LOCKED`
	}

	rows, err := tx.QueryContext(ctx, r.db.Rebind(query), campaignID.String(), false,
		models.CampaignLeadPending, models.CampaignLeadFailed, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	claimed, err := collectCampaignLeads(rows)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range claimed {
		cl := &claimed[i]
		cl.Status = models.CampaignLeadInProgress
		cl.Attempts++
		cl.LastAttemptAt = &now
		cl.UpdatedAt = now

		_, err := tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE campaign_leads
			SET status = ?, attempts = ?, last_attempt_at = ?, updated_at = ?
			WHERE campaign_id = ? AND lead_id = ?
		`), cl.Status, cl.Attempts, now, now, cl.CampaignID.String(), cl.LeadID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to claim lead %s: %w", cl.LeadID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordOutcome sets an assignment's status and outcome.
func (r *LeadsRepository) RecordOutcome(ctx context.Context, campaignID, leadID uuid.UUID, status, outcome string) error {
	res, err := r.db.exec(ctx, `
		UPDATE campaign_leads
		SET status = ?, outcome = ?, updated_at = ?
		WHERE campaign_id = ? AND lead_id = ?
	`, status, outcome, time.Now().UTC(), campaignID.String(), leadID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// SettleAttempt records the outcome of the call placed at placedAt. It is a
// no-op, returning false, when the lead has since been claimed again.
func (r *LeadsRepository) SettleAttempt(ctx context.Context, campaignID, leadID uuid.UUID, placedAt time.Time, status, outcome string) (bool, error) {
	res, err := r.db.exec(ctx, `
		UPDATE campaign_leads
		SET status = ?, outcome = ?, updated_at = ?
		WHERE campaign_id = ? AND lead_id = ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)
	`, status, outcome, time.Now().UTC(), campaignID.String(), leadID.String(), placedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.GetCampaignLead(ctx, campaignID, leadID); err != nil {
		return false, err
	}
	return false, nil
}

// RequeueStale marks in_progress assignments claimed before cutoff as
// failed, so calls that never reported back re-enter the retry pool.
func (r *LeadsRepository) RequeueStale(ctx context.Context, campaignID uuid.UUID, cutoff time.Time) (int, error) {
	res, err := r.db.exec(ctx, `
		UPDATE campaign_leads
		SET status = ?, outcome = ?, updated_at = ?
		WHERE campaign_id = ? AND status = ? AND last_attempt_at < ?
	`, models.CampaignLeadFailed, OutcomeTimedOut, time.Now().UTC(), campaignID.String(),
		models.CampaignLeadInProgress, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountOpen returns how many assignments are still callable or in flight.
func (r *LeadsRepository) CountOpen(ctx context.Context, campaignID uuid.UUID, maxAttempts int) (int, error) {
	var n int
	err := r.db.queryRow(ctx, `
		SELECT COUNT(*)
		FROM campaign_leads cl
		JOIN leads l ON l.id = cl.lead_id
		WHERE cl.campaign_id = ?
			AND (cl.status = ?
				OR (l.do_not_call = ? AND l.phone <> '' AND (cl.status = ? OR (cl.status = ? AND cl.attempts < ?))))
	`, campaignID.String(), models.CampaignLeadInProgress, false,
		models.CampaignLeadPending, models.CampaignLeadFailed, maxAttempts).Scan(&n)
	return n, err
}

func collectCampaignLeads(rows *sql.Rows) ([]CampaignLeadWithLead, error) {
	defer rows.Close()

	result := []CampaignLeadWithLead{}
	for rows.Next() {
		var item CampaignLeadWithLead
		var lastAttempt sql.NullTime
		var sourceID sql.NullString

		err := rows.Scan(&item.CampaignID, &item.LeadID, &item.Status, &item.Attempts, &lastAttempt, &item.Outcome,
			&item.CreatedAt, &item.UpdatedAt,
			&item.Lead.ID, &item.Lead.BusinessID, &item.Lead.FirstName, &item.Lead.LastName, &item.Lead.Email,
			&item.Lead.Phone, &item.Lead.Company, &item.Lead.Source, &sourceID, &item.Lead.DoNotCall,
			&item.Lead.Status, &item.Lead.Notes, &item.Lead.CreatedAt, &item.Lead.UpdatedAt)
		if err != nil {
			return nil, err
		}
		item.LastAttemptAt = timePtr(lastAttempt)
		item.Lead.SourceID = sourceID.String
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanLead(row scanner) (*models.Lead, error) {
	var l models.Lead
	var sourceID sql.NullString

	err := row.Scan(&l.ID, &l.BusinessID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Company,
		&l.Source, &sourceID, &l.DoNotCall, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.SourceID = sourceID.String
	return &l, nil
}
