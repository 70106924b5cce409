package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// AncestorRepository maintains the building and location container records
// that group device configs. Containers are created idempotently on the
// config path and garbage-collected once childless.
type AncestorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAncestorRepository creates an ancestor repository.
func NewAncestorRepository(db *sql.DB, logger *zap.Logger) *AncestorRepository {
	return &AncestorRepository{db: db, logger: logger}
}

// EnsureBuilding merge-upserts a building container record.
func (r *AncestorRepository) EnsureBuilding(ctx context.Context, companyID, building string) error {
	query := `
		INSERT INTO buildings (company_id, building)
		VALUES ($1, $2)
		ON CONFLICT (company_id, building) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, companyID, building); err != nil {
		return fmt.Errorf("failed to upsert building: %w", err)
	}

	return nil
}

// EnsureLocation merge-upserts a location container record.
func (r *AncestorRepository) EnsureLocation(ctx context.Context, companyID, building, location string) error {
	query := `
		INSERT INTO locations (company_id, building, location)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, building, location) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, companyID, building, location); err != nil {
		return fmt.Errorf("failed to upsert location: %w", err)
	}

	return nil
}

// DeleteBuilding removes a building container record.
func (r *AncestorRepository) DeleteBuilding(ctx context.Context, companyID, building string) error {
	query := `DELETE FROM buildings WHERE company_id = $1 AND building = $2`

	if _, err := r.db.ExecContext(ctx, query, companyID, building); err != nil {
		return fmt.Errorf("failed to delete building: %w", err)
	}

	return nil
}

// DeleteLocation removes a location container record.
func (r *AncestorRepository) DeleteLocation(ctx context.Context, companyID, building, location string) error {
	query := `DELETE FROM locations WHERE company_id = $1 AND building = $2 AND location = $3`

	if _, err := r.db.ExecContext(ctx, query, companyID, building, location); err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}

	return nil
}
