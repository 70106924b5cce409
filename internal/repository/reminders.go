package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// ReminderRepository reads and consumes one-shot vacancy reminders. Creation
// is owned by another service.
type ReminderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReminderRepository creates a reminder repository.
func NewReminderRepository(db *sql.DB, logger *zap.Logger) *ReminderRepository {
	return &ReminderRepository{db: db, logger: logger}
}

// Match returns every subscription for the given position.
func (r *ReminderRepository) Match(ctx context.Context, companyID, building, location, gender string) ([]models.ReminderSubscription, error) {
	query := `
		SELECT id, building, location, gender, recipient_token
		FROM reminders
		WHERE company_id = $1 AND building = $2 AND location = $3 AND gender = $4
	`

	rows, err := r.db.QueryContext(ctx, query, companyID, building, location, gender)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var subs []models.ReminderSubscription
	for rows.Next() {
		var s models.ReminderSubscription
		if err := rows.Scan(&s.ID, &s.Building, &s.Location, &s.Gender, &s.RecipientToken); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}

	return subs, nil
}

// Delete removes one subscription. Idempotent: deleting an already-consumed
// subscription is not an error.
func (r *ReminderRepository) Delete(ctx context.Context, companyID, id string) error {
	query := `DELETE FROM reminders WHERE company_id = $1 AND id = $2`

	if _, err := r.db.ExecContext(ctx, query, companyID, id); err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	return nil
}
