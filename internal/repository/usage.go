package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// UsageRepository commits usage-meter deltas to the durable per-tenant daily
// counter. Satisfies meter.Flusher.
type UsageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsageRepository creates a usage repository.
func NewUsageRepository(db *sql.DB, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{db: db, logger: logger}
}

// Flush atomically increments today's counter row for a tenant inside a
// transaction. The delta is applied exactly once per call; idempotence across
// calls is the meter's reset-before-commit responsibility.
func (r *UsageRepository) Flush(ctx context.Context, companyID string, reads, writes int) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}

	query := `
		INSERT INTO usage_daily (company_id, day, reads, writes)
		VALUES ($1, CURRENT_DATE, $2, $3)
		ON CONFLICT (company_id, day) DO UPDATE SET
			reads = usage_daily.reads + EXCLUDED.reads,
			writes = usage_daily.writes + EXCLUDED.writes
	`

	if _, err := tx.ExecContext(ctx, query, companyID, reads, writes); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to increment usage counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}

	return nil
}
