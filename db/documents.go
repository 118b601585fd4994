// ABOUTME: Knowledge base document ownership
// ABOUTME: Maps ElevenLabs document ids to the business that uploaded them
package db

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/callhenk/henk-sub004/models"
	"github.com/google/uuid"
)

// DocumentsRepository tracks knowledge base documents per business.
type DocumentsRepository struct {
	db *DB
}

func NewDocumentsRepository(db *DB) *DocumentsRepository {
	return &DocumentsRepository{db: db}
}

// Add records a document. Recording the same id again is a no-op.
func (r *DocumentsRepository) Add(ctx context.Context, d *models.KnowledgeDocument) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.exec(ctx, `
		INSERT INTO knowledge_documents (document_id, business_id, name, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (document_id) DO NOTHING
	`, d.DocumentID, d.BusinessID.String(), d.Name, d.CreatedBy, d.CreatedAt)
	return err
}

// Get returns a document only when businessID owns it.
func (r *DocumentsRepository) Get(ctx context.Context, businessID uuid.UUID, documentID string) (*models.KnowledgeDocument, error) {
	var d models.KnowledgeDocument
	err := r.db.queryRow(ctx, `
		SELECT document_id, business_id, name, created_by, created_at
		FROM knowledge_documents
		WHERE document_id = ? AND business_id = ?
	`, documentID, businessID.String()).Scan(&d.DocumentID, &d.BusinessID, &d.Name, &d.CreatedBy, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns a business's documents, newest first.
func (r *DocumentsRepository) List(ctx context.Context, businessID uuid.UUID) ([]models.KnowledgeDocument, error) {
	rows, err := r.db.query(ctx, `
		SELECT document_id, business_id, name, created_by, created_at
		FROM knowledge_documents
		WHERE business_id = ?
		ORDER BY created_at DESC
	`, businessID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var d models.KnowledgeDocument
		if err := rows.Scan(&d.DocumentID, &d.BusinessID, &d.Name, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Delete forgets a document and removes it from every agent of the
// business. It returns the agents whose knowledge base changed.
func (r *DocumentsRepository) Delete(ctx context.Context, businessID uuid.UUID, documentID string) ([]models.Agent, error) {
	repo := NewAgentsRepository(r.db)
	agents, err := repo.List(ctx, businessID)
	if err != nil {
		return nil, err
	}

	var changed []models.Agent
	for _, a := range agents {
		if !slices.Contains(a.KnowledgeBaseIDs, documentID) {
			continue
		}
		a.KnowledgeBaseIDs = slices.DeleteFunc(a.KnowledgeBaseIDs, func(id string) bool { return id == documentID })
		if err := repo.Update(ctx, &a); err != nil {
			return nil, err
		}
		changed = append(changed, a)
	}

	res, err := r.db.exec(ctx, `DELETE FROM knowledge_documents WHERE document_id = ? AND business_id = ?`,
		documentID, businessID.String())
	if err != nil {
		return nil, err
	}
	return changed, expectAffected(res)
}
