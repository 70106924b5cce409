package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// LogRepository appends state-transition log entries. Entries are append-only,
// never updated or deleted here.
type LogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLogRepository creates a log repository.
func NewLogRepository(db *sql.DB, logger *zap.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

// Append inserts one log entry, generating its id when unset.
func (r *LogRepository) Append(ctx context.Context, companyID string, entry *models.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO sensor_logs
			(id, company_id, sensor_type, building, location, gender, slot, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, companyID, entry.SensorType,
		entry.Building, entry.Location, entry.Gender, entry.Slot,
		entry.Status, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return nil
}
