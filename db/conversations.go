// ABOUTME: Conversation database operations
// ABOUTME: Stores call records keyed by internal id, ElevenLabs conversation id and Twilio call SID
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
)

const conversationColumns = `id, business_id, campaign_id, agent_id, lead_id, conversation_id, call_sid, status,
	transcript, summary, duration_seconds, outcome, started_at, ended_at, created_at, updated_at`

// ConversationsRepository provides CRUD operations for call records.
type ConversationsRepository struct {
	db *DB
}

// NewConversationsRepository creates a new conversations repository.
func NewConversationsRepository(db *DB) *ConversationsRepository {
	return &ConversationsRepository{db: db}
}

// Create inserts a conversation record.
func (r *ConversationsRepository) Create(ctx context.Context, c *models.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.ConversationInitiated
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	transcript, err := json.Marshal(transcriptOrEmpty(c.Transcript))
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.BusinessID.String(), uuidArg(c.CampaignID), uuidArg(c.AgentID), uuidArg(c.LeadID),
		nullString(c.ConversationID), nullString(c.CallSID), c.Status, string(transcript), c.Summary,
		c.DurationSeconds, c.Outcome, timeArg(c.StartedAt), timeArg(c.EndedAt), c.CreatedAt, c.UpdatedAt)
	return err
}

// Get returns a conversation by internal ID.
func (r *ConversationsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := r.db.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id.String())
	return scanConversation(row)
}

// GetByConversationID returns the record for an ElevenLabs conversation id.
func (r *ConversationsRepository) GetByConversationID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	row := r.db.queryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, conversationID)
	return scanConversation(row)
}

// GetByCallSID returns the most recent record for a Twilio call SID.
func (r *ConversationsRepository) GetByCallSID(ctx context.Context, callSID string) (*models.Conversation, error) {
	row := r.db.queryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE call_sid = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, callSID)
	return scanConversation(row)
}

// List returns a business's conversations, newest first. A non-nil
// campaignID narrows the list to that campaign.
func (r *ConversationsRepository) List(ctx context.Context, businessID uuid.UUID, campaignID *uuid.UUID, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error

	if campaignID != nil {
		rows, err = r.db.query(ctx, `
			SELECT `+conversationColumns+` FROM conversations
			WHERE business_id = ? AND campaign_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, businessID.String(), campaignID.String(), limit)
	} else {
		rows, err = r.db.query(ctx, `
			SELECT `+conversationColumns+` FROM conversations
			WHERE business_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, businessID.String(), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// Update writes the mutable call fields.
func (r *ConversationsRepository) Update(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = time.Now().UTC()

	transcript, err := json.Marshal(transcriptOrEmpty(c.Transcript))
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	res, err := r.db.exec(ctx, `
		UPDATE conversations
		SET conversation_id = ?, call_sid = ?, status = ?, transcript = ?, summary = ?, duration_seconds = ?,
			outcome = ?, started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ?
	`, nullString(c.ConversationID), nullString(c.CallSID), c.Status, string(transcript), c.Summary,
		c.DurationSeconds, c.Outcome, timeArg(c.StartedAt), timeArg(c.EndedAt), c.UpdatedAt, c.ID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// UpdateCallStatus records a Twilio status callback against the call SID.
// A non-zero duration overwrites the stored one. Rows that already reached a
// terminal status are left alone and reported as not updated, so a late
// ringing callback cannot reopen a finished call.
func (r *ConversationsRepository) UpdateCallStatus(ctx context.Context, callSID, status string, durationSeconds int) (bool, error) {
	now := time.Now().UTC()

	var endedAt any
	if models.ConversationTerminal(status) {
		endedAt = now
	}

	res, err := r.db.exec(ctx, `
		UPDATE conversations
		SET status = ?,
			duration_seconds = CASE WHEN ? > 0 THEN ? ELSE duration_seconds END,
			ended_at = COALESCE(ended_at, ?),
			updated_at = ?
		WHERE call_sid = ? AND status NOT IN (?, ?, ?)
	`, status, durationSeconds, durationSeconds, endedAt, now, callSID,
		models.ConversationCompleted, models.ConversationFailed, models.ConversationNoAnswer)
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

	var current string
	err = r.db.queryRow(ctx, `SELECT status FROM conversations WHERE call_sid = ?`, callSID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return false, err
}

func transcriptOrEmpty(t []models.TranscriptTurn) []models.TranscriptTurn {
	if t == nil {
		return []models.TranscriptTurn{}
	}
	return t
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var c models.Conversation
	var campaignID, agentID, leadID uuid.NullUUID
	var conversationID, callSID sql.NullString
	var transcript string
	var startedAt, endedAt sql.NullTime

	err := row.Scan(&c.ID, &c.BusinessID, &campaignID, &agentID, &leadID, &conversationID, &callSID, &c.Status,
		&transcript, &c.Summary, &c.DurationSeconds, &c.Outcome, &startedAt, &endedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.CampaignID = uuidPtr(campaignID)
	c.AgentID = uuidPtr(agentID)
	c.LeadID = uuidPtr(leadID)
	c.ConversationID = conversationID.String
	c.CallSID = callSID.String
	c.StartedAt = timePtr(startedAt)
	c.EndedAt = timePtr(endedAt)

	c.Transcript = []models.TranscriptTurn{}
	if transcript != "" {
		if err := json.Unmarshal([]byte(transcript), &c.Transcript); err != nil {
			return nil, fmt.Errorf("failed to decode transcript: %w", err)
		}
	}
	return &c, nil
}
