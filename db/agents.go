// ABOUTME: Agent database operations
// ABOUTME: Handles business-scoped CRUD and the link to the ElevenLabs agent id
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

const agentColumns = `id, business_id, name, description, voice_id, language, first_message, system_prompt,
	knowledge_base_ids, elevenlabs_agent_id, caller_id, status, created_by, created_at, updated_at`

// AgentsRepository provides CRUD operations for voice agents.
type AgentsRepository struct {
	db *DB
}

// NewAgentsRepository creates a new agents repository.
func NewAgentsRepository(db *DB) *AgentsRepository {
	return &AgentsRepository{db: db}
}

// Create inserts a new agent.
func (r *AgentsRepository) Create(ctx context.Context, a *models.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AgentActive
	}
	if a.Language == "" {
		a.Language = "en"
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	kb, err := marshalIDs(a.KnowledgeBaseIDs)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.BusinessID.String(), a.Name, a.Description, a.VoiceID, a.Language, a.FirstMessage,
		a.SystemPrompt, kb, nullString(a.ElevenLabsAgentID), a.CallerID, a.Status, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

// Get returns an agent by ID.
func (r *AgentsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	row := r.db.queryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id.String())
	return scanAgent(row)
}

// FindByElevenLabsID returns the agent linked to a remote ElevenLabs agent.
func (r *AgentsRepository) FindByElevenLabsID(ctx context.Context, elevenLabsID string) (*models.Agent, error) {
	row := r.db.queryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE elevenlabs_agent_id = ?`, elevenLabsID)
	return scanAgent(row)
}

// List returns a business's agents, newest first.
func (r *AgentsRepository) List(ctx context.Context, businessID uuid.UUID) ([]models.Agent, error) {
	rows, err := r.db.query(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE business_id = ?
		ORDER BY created_at DESC
	`, businessID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []models.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// Update writes every mutable field of the agent.
func (r *AgentsRepository) Update(ctx context.Context, a *models.Agent) error {
	a.UpdatedAt = time.Now().UTC()

	kb, err := marshalIDs(a.KnowledgeBaseIDs)
	if err != nil {
		return err
	}

	res, err := r.db.exec(ctx, `
		UPDATE agents
		SET name = ?, description = ?, voice_id = ?, language = ?, first_message = ?, system_prompt = ?,
			knowledge_base_ids = ?, elevenlabs_agent_id = ?, caller_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, a.Description, a.VoiceID, a.Language, a.FirstMessage, a.SystemPrompt,
		kb, nullString(a.ElevenLabsAgentID), a.CallerID, a.Status, a.UpdatedAt, a.ID.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// Delete removes an agent. Campaigns and conversations keep their rows with
// the agent reference cleared.
func (r *AgentsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.exec(ctx, `DELETE FROM agents WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanAgent(row scanner) (*models.Agent, error) {
	var a models.Agent
	var kb string
	var elevenLabsID sql.NullString

	err := row.Scan(&a.ID, &a.BusinessID, &a.Name, &a.Description, &a.VoiceID, &a.Language, &a.FirstMessage,
		&a.SystemPrompt, &kb, &elevenLabsID, &a.CallerID, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.ElevenLabsAgentID = elevenLabsID.String
	a.KnowledgeBaseIDs, err = unmarshalIDs(kb)
	if err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base ids: %w", err)
	}
	return &a, nil
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalIDs(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// expectAffected turns a zero-row UPDATE/DELETE into ErrNotFound.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
