package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// TenantRepository reads the company gate records.
type TenantRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTenantRepository creates a tenant repository.
func NewTenantRepository(db *sql.DB, logger *zap.Logger) *TenantRepository {
	return &TenantRepository{db: db, logger: logger}
}

// GetTenant returns the tenant gate record, or nil when the company is unknown.
func (r *TenantRepository) GetTenant(ctx context.Context, companyID string) (*models.Tenant, error) {
	query := `
		SELECT company_id, is_deactivated
		FROM companies
		WHERE company_id = $1
	`

	var id string
	var deactivated bool
	err := r.db.QueryRowContext(ctx, query, companyID).Scan(&id, &deactivated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}

	return &models.Tenant{CompanyID: id, Active: !deactivated}, nil
}
