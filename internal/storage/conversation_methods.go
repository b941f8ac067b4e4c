package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// ========== Conversation Methods ==========

const conversationColumns = `id, created_at, updated_at, tenant_id, recipient_id,
               status, last_activity_at, ended_at, finalized_at`

// CreateConversation creates a new conversation
func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Status == "" {
		conv.Status = models.ConversationActive
	}
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = now
	}

	query := `
        INSERT INTO conversations (
            id, created_at, updated_at, tenant_id, recipient_id,
            status, last_activity_at, ended_at, finalized_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		conv.ID, conv.CreatedAt, conv.UpdatedAt, conv.TenantID, conv.RecipientID,
		conv.Status, conv.LastActivityAt, conv.EndedAt, conv.FinalizedAt,
	)

	return err
}

func scanConversation(row interface{ Scan(...interface{}) error }) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.CreatedAt, &conv.UpdatedAt, &conv.TenantID,
		&conv.RecipientID, &conv.Status, &conv.LastActivityAt,
		&conv.EndedAt, &conv.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation gets a conversation by id
func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := scanConversation(s.getDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// GetActiveConversation gets the active conversation for a tenant/recipient pair
func (s *PostgresStore) GetActiveConversation(ctx context.Context, tenantID uuid.UUID, recipientID string) (*models.Conversation, error) {
	query := `
        SELECT ` + conversationColumns + `
        FROM conversations
        WHERE tenant_id = $1 AND recipient_id = $2 AND status = 'active'
        ORDER BY last_activity_at DESC
        LIMIT 1`

	conv, err := scanConversation(s.getDB().QueryRowContext(ctx, query, tenantID, recipientID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// ListConversations lists conversations for a tenant
func (s *PostgresStore) ListConversations(ctx context.Context, tenantID uuid.UUID, status *models.ConversationStatus, limit, offset int) ([]*models.Conversation, int64, error) {
	countQuery := `SELECT COUNT(*) FROM conversations WHERE tenant_id = $1`
	listQuery := `
        SELECT ` + conversationColumns + `
        FROM conversations
        WHERE tenant_id = $1`

	args := []interface{}{tenantID}
	if status != nil {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, *status)
	}

	var total int64
	if err := s.getDB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery += ` ORDER BY last_activity_at DESC`
	if status != nil {
		listQuery += ` LIMIT $3 OFFSET $4`
	} else {
		listQuery += ` LIMIT $2 OFFSET $3`
	}
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, conv)
	}

	return convs, total, rows.Err()
}

// ListSweepCandidates lists active conversations idle since before idleBefore
// or explicitly ended
func (s *PostgresStore) ListSweepCandidates(ctx context.Context, tenantID *uuid.UUID, idleBefore time.Time) ([]*models.Conversation, error) {
	query := `
        SELECT ` + conversationColumns + `
        FROM conversations
        WHERE status = 'active' AND (last_activity_at < $1 OR ended_at IS NOT NULL)`

	args := []interface{}{idleBefore}
	if tenantID != nil {
		query += ` AND tenant_id = $2`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY last_activity_at ASC`

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// TransitionConversation performs a conditional status transition
func (s *PostgresStore) TransitionConversation(ctx context.Context, id uuid.UUID, from, to models.ConversationStatus, finalizedAt time.Time) (bool, error) {
	query := `
        UPDATE conversations
        SET status = $3, finalized_at = $4, updated_at = $4
        WHERE id = $1 AND status = $2`

	result, err := s.getDB().ExecContext(ctx, query, id, from, to, finalizedAt)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// TouchConversation updates a conversation's last activity timestamp
func (s *PostgresStore) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE conversations SET last_activity_at = $2, updated_at = $2 WHERE id = $1`,
		id, at,
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

// EndConversation marks a conversation as explicitly ended
func (s *PostgresStore) EndConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE conversations SET ended_at = $2, updated_at = $2 WHERE id = $1 AND status = 'active'`,
		id, at,
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

// ========== Message Methods ==========

// CreateMessage creates a new message
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO messages (id, created_at, conversation_id, sender, content, read)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.getDB().ExecContext(ctx, query,
		msg.ID, msg.CreatedAt, msg.ConversationID, msg.Sender, msg.Content, msg.Read,
	)

	return err
}

// ListMessages lists messages for a conversation, oldest first
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*models.Message, int64, error) {
	var total int64
	err := s.getDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, conversation_id, sender, content, read
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID, &msg.CreatedAt, &msg.ConversationID,
			&msg.Sender, &msg.Content, &msg.Read,
		)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, total, rows.Err()
}

// ListRecentMessages returns the newest limit messages, oldest first
func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	query := `
        SELECT id, created_at, conversation_id, sender, content, read
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at DESC
        LIMIT $2`

	rows, err := s.getDB().QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(
			&msg.ID, &msg.CreatedAt, &msg.ConversationID,
			&msg.Sender, &msg.Content, &msg.Read,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Back to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}
