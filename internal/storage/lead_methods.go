package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// ========== Lead Methods ==========

const leadColumns = `id, created_at, updated_at, tenant_id, conversation_id,
               type, status, customer_name, customer_phone, details`

// CreateLead creates a new lead
func (s *PostgresStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}

	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	query := `
        INSERT INTO leads (
            id, created_at, updated_at, tenant_id, conversation_id,
            type, status, customer_name, customer_phone, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		lead.ID, lead.CreatedAt, lead.UpdatedAt, lead.TenantID, lead.ConversationID,
		lead.Type, lead.Status, lead.CustomerName, lead.CustomerPhone, lead.Details,
	)

	return err
}

func scanLead(row interface{ Scan(...interface{}) error }) (*models.Lead, error) {
	lead := &models.Lead{}
	err := row.Scan(
		&lead.ID, &lead.CreatedAt, &lead.UpdatedAt, &lead.TenantID,
		&lead.ConversationID, &lead.Type, &lead.Status,
		&lead.CustomerName, &lead.CustomerPhone, &lead.Details,
	)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// GetLead gets a lead by id
func (s *PostgresStore) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(s.getDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return lead, nil
}

// GetLeadByConversation gets the lead for a conversation, if any
func (s *PostgresStore) GetLeadByConversation(ctx context.Context, conversationID uuid.UUID) (*models.Lead, error) {
	query := `
        SELECT ` + leadColumns + `
        FROM leads
        WHERE conversation_id = $1
        ORDER BY created_at ASC
        LIMIT 1`

	lead, err := scanLead(s.getDB().QueryRowContext(ctx, query, conversationID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return lead, nil
}

// ListLeads lists leads for a tenant, newest first
func (s *PostgresStore) ListLeads(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Lead, int64, error) {
	var total int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE tenant_id = $1`, tenantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT ` + leadColumns + `
        FROM leads
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}

	return leads, total, rows.Err()
}

// UpdateLeadStatus updates a lead's status
func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id uuid.UUID, status models.LeadStatus) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now(),
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
