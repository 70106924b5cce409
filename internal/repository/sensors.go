package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// SensorRepository stores current sensor state documents. Records are keyed by
// (company, sensor type, composite doc id); aggregate records share the table
// with an empty slot.
type SensorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorRepository creates a sensor record repository.
func NewSensorRepository(db *sql.DB, logger *zap.Logger) *SensorRepository {
	return &SensorRepository{db: db, logger: logger}
}

// GetRecord fetches one sensor record, nil when absent.
func (r *SensorRepository) GetRecord(ctx context.Context, companyID, sensorType, docID string) (*models.SensorRecord, error) {
	query := `
		SELECT location, slot, status, COALESCE(amount, ''), last_updated
		FROM sensor_records
		WHERE company_id = $1 AND sensor_type = $2 AND doc_id = $3
	`

	rec := &models.SensorRecord{}
	err := r.db.QueryRowContext(ctx, query, companyID, sensorType, docID).Scan(
		&rec.Location,
		&rec.Slot,
		&rec.Status,
		&rec.Amount,
		&rec.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sensor record: %w", err)
	}

	return rec, nil
}

// UpsertRecord merge-upserts one sensor record. An empty amount leaves any
// previously stored amount in place, matching merge semantics.
func (r *SensorRepository) UpsertRecord(ctx context.Context, companyID, sensorType, docID, building, gender string, rec *models.SensorRecord) error {
	query := `
		INSERT INTO sensor_records
			(company_id, sensor_type, doc_id, building, location, gender, slot, status, amount, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		ON CONFLICT (company_id, sensor_type, doc_id) DO UPDATE SET
			location = EXCLUDED.location,
			slot = EXCLUDED.slot,
			status = EXCLUDED.status,
			amount = COALESCE(EXCLUDED.amount, sensor_records.amount),
			last_updated = EXCLUDED.last_updated
	`

	_, err := r.db.ExecContext(ctx, query,
		companyID, sensorType, docID,
		building, rec.Location, gender, rec.Slot,
		rec.Status, rec.Amount, rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sensor record: %w", err)
	}

	return nil
}

// DeleteRecord removes one sensor record. Deleting an absent record is not an
// error.
func (r *SensorRepository) DeleteRecord(ctx context.Context, companyID, sensorType, docID string) error {
	query := `
		DELETE FROM sensor_records
		WHERE company_id = $1 AND sensor_type = $2 AND doc_id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, companyID, sensorType, docID); err != nil {
		return fmt.Errorf("failed to delete sensor record: %w", err)
	}

	return nil
}

// EnsureContainer merge-upserts the building container an aggregate record
// hangs under. Idempotent.
func (r *SensorRepository) EnsureContainer(ctx context.Context, companyID, gender, building string) error {
	query := `
		INSERT INTO sensor_containers (company_id, gender, building)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, gender, building) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, companyID, gender, building); err != nil {
		return fmt.Errorf("failed to upsert sensor container: %w", err)
	}

	return nil
}
