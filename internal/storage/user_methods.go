package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// ========== User Methods ==========

// CreateUser creates a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
        INSERT INTO users (
            id, created_at, updated_at, email, username, password_hash,
            is_admin, is_active, tenant_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.CreatedAt, user.UpdatedAt, user.Email, user.Username,
		user.PasswordHash, user.IsAdmin, user.IsActive, user.TenantID,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetUser gets a user by id
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

// GetUserByEmail gets a user by email
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserWhere(ctx, "email = $1", email)
}

func (s *PostgresStore) getUserWhere(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `
        SELECT id, created_at, updated_at, email, username, password_hash,
               is_admin, is_active, last_login_at, tenant_id
        FROM users
        WHERE ` + where

	user := &models.User{}
	err := s.getDB().QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &user.Email, &user.Username,
		&user.PasswordHash, &user.IsAdmin, &user.IsActive, &user.LastLoginAt,
		&user.TenantID,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateUser updates a user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
        UPDATE users
        SET updated_at = $2, email = $3, username = $4, password_hash = $5,
            is_admin = $6, is_active = $7, last_login_at = $8, tenant_id = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		user.ID, user.UpdatedAt, user.Email, user.Username, user.PasswordHash,
		user.IsAdmin, user.IsActive, user.LastLoginAt, user.TenantID,
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
