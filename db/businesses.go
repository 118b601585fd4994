// ABOUTME: Business and team membership database operations
// ABOUTME: Resolves which tenant a user acts for and with what role
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
)

// BusinessesRepository provides tenant and membership lookups.
type BusinessesRepository struct {
	db *DB
}

// NewBusinessesRepository creates a new businesses repository.
func NewBusinessesRepository(db *DB) *BusinessesRepository {
	return &BusinessesRepository{db: db}
}

// Create inserts a business, assigning its ID and timestamps.
func (r *BusinessesRepository) Create(ctx context.Context, b *models.Business) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = "active"
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.db.exec(ctx, `
		INSERT INTO businesses (id, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID.String(), b.Name, b.Status, b.CreatedAt, b.UpdatedAt)
	return err
}

// Get returns a business by ID.
func (r *BusinessesRepository) Get(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var b models.Business
	err := r.db.queryRow(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM businesses WHERE id = ?
	`, id.String()).Scan(&b.ID, &b.Name, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AddMember inserts or replaces a user's membership in a business.
func (r *BusinessesRepository) AddMember(ctx context.Context, m *models.TeamMember) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = models.MemberActive
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.exec(ctx, `
		INSERT INTO team_members (id, business_id, user_id, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (business_id, user_id) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, m.ID.String(), m.BusinessID.String(), m.UserID, m.Role, m.Status, m.CreatedAt, m.UpdatedAt)
	return err
}

// Membership returns the user's membership in a specific business,
// regardless of status.
func (r *BusinessesRepository) Membership(ctx context.Context, userID string, businessID uuid.UUID) (*models.TeamMember, error) {
	row := r.db.queryRow(ctx, `
		SELECT id, business_id, user_id, role, status, created_at, updated_at
		FROM team_members
		WHERE user_id = ? AND business_id = ?
	`, userID, businessID.String())
	return scanMember(row)
}

// ActiveMembership returns the user's first active membership, oldest first.
func (r *BusinessesRepository) ActiveMembership(ctx context.Context, userID string) (*models.TeamMember, error) {
	row := r.db.queryRow(ctx, `
		SELECT id, business_id, user_id, role, status, created_at, updated_at
		FROM team_members
		WHERE user_id = ? AND status = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, userID, models.MemberActive)
	return scanMember(row)
}

func scanMember(row scanner) (*models.TeamMember, error) {
	var m models.TeamMember
	err := row.Scan(&m.ID, &m.BusinessID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
