package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// UserRepository resolves notification recipients from the staff registry.
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// ActiveJanitors returns the push tokens of every active janitor for a tenant.
func (r *UserRepository) ActiveJanitors(ctx context.Context, companyID string) ([]models.Recipient, error) {
	query := `
		SELECT fcm_token, COALESCE(location, ''), COALESCE(gender, '')
		FROM users
		WHERE company_id = $1 AND role = 'janitor' AND active = TRUE
	`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query janitors: %w", err)
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var rec models.Recipient
		if err := rows.Scan(&rec.Token, &rec.Location, &rec.Gender); err != nil {
			return nil, fmt.Errorf("failed to scan janitor: %w", err)
		}
		recipients = append(recipients, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate janitors: %w", err)
	}

	return recipients, nil
}
