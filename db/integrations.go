// ABOUTME: Integration database operations
// ABOUTME: Persists per-business CRM connections with their OAuth credentials and sync state
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

// IntegrationsRepository stores one integration row per business and provider.
type IntegrationsRepository struct {
	db *DB
}

// NewIntegrationsRepository creates a new integrations repository.
func NewIntegrationsRepository(db *DB) *IntegrationsRepository {
	return &IntegrationsRepository{db: db}
}

// Upsert creates the integration or replaces its status, credentials and config.
func (r *IntegrationsRepository) Upsert(ctx context.Context, i *models.Integration) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = models.IntegrationActive
	}
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now

	creds, err := marshalMap(i.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	config, err := marshalMap(i.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO integrations (id, business_id, provider, status, credentials, config, last_sync_at, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id, provider) DO UPDATE SET
			status = excluded.status,
			credentials = excluded.credentials,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, i.ID.String(), i.BusinessID.String(), i.Provider, i.Status, creds, config, timeArg(i.LastSyncAt),
		i.CreatedBy, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return err
	}

	// Reload so the caller sees the surviving row's id and created_at.
	stored, err := r.Get(ctx, i.BusinessID, i.Provider)
	if err != nil {
		return err
	}
	*i = *stored
	return nil
}

// Get returns the business's integration for a provider.
func (r *IntegrationsRepository) Get(ctx context.Context, businessID uuid.UUID, provider string) (*models.Integration, error) {
	var i models.Integration
	var creds, config string
	var lastSync sql.NullTime

	err := r.db.queryRow(ctx, `
		SELECT id, business_id, provider, status, credentials, config, last_sync_at, created_by, created_at, updated_at
		FROM integrations
		WHERE business_id = ? AND provider = ?
	`, businessID.String(), provider).Scan(&i.ID, &i.BusinessID, &i.Provider, &i.Status, &creds, &config,
		&lastSync, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if i.Credentials, err = unmarshalMap(creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if i.Config, err = unmarshalMap(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	i.LastSyncAt = timePtr(lastSync)
	return &i, nil
}

// UpdateCredentials replaces stored credentials, e.g. after a token refresh.
func (r *IntegrationsRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, credentials map[string]string) error {
	creds, err := marshalMap(credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	res, err := r.db.exec(ctx, `
		UPDATE integrations SET credentials = ?, updated_at = ? WHERE id = ?
	`, creds, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// MarkSynced records a sync result. A non-empty status also updates the
// integration's status.
func (r *IntegrationsRepository) MarkSynced(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	res, err := r.db.exec(ctx, `
		UPDATE integrations
		SET last_sync_at = ?, status = COALESCE(NULLIF(?, ''), status), updated_at = ?
		WHERE id = ?
	`, at.UTC(), status, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalMap(raw string) (map[string]string, error) {
	m := map[string]string{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
